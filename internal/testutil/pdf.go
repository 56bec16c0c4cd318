package testutil

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
)

// PDF builds a small, well-formed PDF 1.4 file with one page per text.
// Objects are written in number order with an exact cross-reference table.
func PDF(pages ...string) []byte {
	if len(pages) == 0 {
		pages = []string{"page one"}
	}

	var buf bytes.Buffer
	var offsets []int
	obj := func(format string, args ...any) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, format, args...)
	}

	buf.WriteString("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	obj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	obj("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), len(pages))
	obj("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")
	for i, text := range pages {
		pageNr := 4 + 2*i
		content := fmt.Sprintf("BT /F1 18 Tf 72 720 Td (%s) Tj ET", text)
		obj("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>\nendobj\n",
			pageNr, pageNr+1)
		obj("%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", pageNr+1, len(content), content)
	}

	xref := buf.Len()
	size := len(offsets) + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}

// PNG returns a solid-colour PNG image of the given size.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CountText counts how often text occurs in a PDF, looking inside
// Flate-compressed streams as well as the raw bytes, and accepting both
// literal and hex string encodings.
func CountText(pdf []byte, text string) int {
	needles := [][]byte{
		[]byte(text),
		[]byte(hex.EncodeToString([]byte(text))),
		[]byte(strings.ToUpper(hex.EncodeToString([]byte(text)))),
	}
	count := func(hay []byte) int {
		n := 0
		for _, needle := range needles {
			n += bytes.Count(hay, needle)
		}
		return n
	}

	total := count(pdf)
	for _, stream := range streams(pdf) {
		r, err := zlib.NewReader(bytes.NewReader(stream))
		if err != nil {
			continue
		}
		decoded, err := io.ReadAll(r)
		r.Close()
		if err != nil && len(decoded) == 0 {
			continue
		}
		total += count(decoded)
	}
	return total
}

// streams returns the raw payload of every stream object in pdf.
func streams(pdf []byte) [][]byte {
	var out [][]byte
	kw := []byte("stream")
	end := []byte("endstream")
	pos := 0
	for {
		i := bytes.Index(pdf[pos:], kw)
		if i < 0 {
			return out
		}
		i += pos
		pos = i + len(kw)
		if i >= 3 && string(pdf[i-3:i]) == "end" {
			continue
		}
		start := pos
		if start < len(pdf) && pdf[start] == '\r' {
			start++
		}
		if start < len(pdf) && pdf[start] == '\n' {
			start++
		}
		j := bytes.Index(pdf[start:], end)
		if j < 0 {
			return out
		}
		out = append(out, pdf[start:start+j])
		pos = start + j + len(end)
	}
}
