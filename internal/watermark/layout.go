package watermark

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	modDateRe = regexp.MustCompile(`/ModDate\s*\((D:[^)]*)\)`)
	creDateRe = regexp.MustCompile(`/CreationDate\s*\((D:[^)]*)\)`)
	fileIDRe  = regexp.MustCompile(`/ID\s*\[\s*<([0-9A-Fa-f]*)>\s*<([0-9A-Fa-f]*)>\s*\]`)
	sizeRe    = regexp.MustCompile(`/Size\s+\d+`)
	infoRefRe = regexp.MustCompile(`/Info\s+(\d+)\s+\d+\s+R`)
)

// infoKeys are the standard information entries a stamp may set. The writer
// fills some of them with its own values; requested values win.
var infoKeys = []string{"Producer", "Creator"}

var infoEntryRe = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(infoKeys))
	for _, k := range infoKeys {
		m[k] = regexp.MustCompile(`/` + k + `\s*(?:\([^)]*\)|<[0-9A-Fa-f\s]*>)`)
	}
	return m
}()

type xrefEntry struct {
	nr, gen, offset int
}

// canonicalize rewrites a PDF with a single classic cross-reference section so
// that the same logical content always serialises to the same bytes: objects
// are emitted in object-number order, the modification date is pinned to
// opts.Timestamp and the trailer ID is derived from the source and options.
// Files it cannot parse are returned unchanged.
func canonicalize(data, src []byte, opts Options) ([]byte, error) {
	sx := bytes.LastIndex(data, []byte("startxref"))
	if sx < 0 {
		return data, nil
	}
	fields := strings.Fields(string(data[sx+len("startxref"):]))
	if len(fields) == 0 {
		return data, nil
	}
	xrefOff, err := strconv.Atoi(fields[0])
	if err != nil || xrefOff <= 0 || xrefOff >= sx || !bytes.HasPrefix(data[xrefOff:], []byte("xref")) {
		return data, nil
	}

	tr := bytes.Index(data[xrefOff:], []byte("trailer"))
	if tr < 0 {
		return data, nil
	}
	tr += xrefOff
	trailer := bytes.TrimSpace(data[tr+len("trailer") : sx])
	if bytes.Contains(trailer, []byte("/Prev")) {
		return data, nil
	}

	entries, ok := parseXRef(string(data[xrefOff+len("xref") : tr]))
	if !ok || len(entries) == 0 {
		return data, nil
	}

	// Each object runs from its offset to the next object (or the xref table).
	sort.Slice(entries, func(i, j int) bool { return entries[i].offset < entries[j].offset })
	objects := make(map[int][]byte, len(entries))
	maxNr := 0
	for i, e := range entries {
		end := xrefOff
		if i+1 < len(entries) {
			end = entries[i+1].offset
		}
		if e.offset >= end {
			return data, nil
		}
		body := bytes.TrimRight(data[e.offset:end], " \t\r\n\f\x00")
		if !bytes.HasPrefix(body, []byte(fmt.Sprintf("%d %d obj", e.nr, e.gen))) {
			return data, nil
		}
		objects[e.nr] = body
		if e.nr > maxNr {
			maxNr = e.nr
		}
	}
	header := data[:entries[0].offset]
	gens := make(map[int]int, len(entries))
	for _, e := range entries {
		gens[e.nr] = e.gen
	}

	stamp := pdfDate(opts.Timestamp)
	for nr, body := range objects {
		if bytes.Contains(body, []byte("stream")) {
			continue
		}
		objects[nr] = pinDates(body, src, stamp)
	}

	if m := infoRefRe.FindSubmatch(trailer); m != nil && len(opts.Properties) > 0 {
		if nr, err := strconv.Atoi(string(m[1])); err == nil {
			if body, ok := objects[nr]; ok {
				objects[nr] = pinInfo(body, opts.Properties)
			}
		}
	}

	size := maxNr + 1
	var out bytes.Buffer
	out.Grow(len(data))
	out.Write(header)
	if !bytes.HasSuffix(header, []byte("\n")) {
		out.WriteByte('\n')
	}

	offsets := make(map[int]int, len(objects))
	for nr := 1; nr < size; nr++ {
		body, ok := objects[nr]
		if !ok {
			continue
		}
		offsets[nr] = out.Len()
		out.Write(body)
		out.WriteByte('\n')
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", size)
	for nr := 1; nr < size; nr++ {
		if off, ok := offsets[nr]; ok {
			fmt.Fprintf(&out, "%010d %05d n \n", off, gens[nr])
		} else {
			out.WriteString("0000000000 00000 f \n")
		}
	}

	trailer = sizeRe.ReplaceAll(trailer, []byte(fmt.Sprintf("/Size %d", size)))
	trailer = pinFileID(trailer, src, opts)
	out.WriteString("trailer\n")
	out.Write(trailer)
	fmt.Fprintf(&out, "\nstartxref\n%d\n%%%%EOF\n", xref)
	return out.Bytes(), nil
}

// parseXRef reads the subsections of a classic cross-reference table.
func parseXRef(section string) ([]xrefEntry, bool) {
	f := strings.Fields(section)
	var entries []xrefEntry
	for i := 0; i < len(f); {
		if i+1 >= len(f) {
			return nil, false
		}
		start, err1 := strconv.Atoi(f[i])
		count, err2 := strconv.Atoi(f[i+1])
		if err1 != nil || err2 != nil || count < 0 {
			return nil, false
		}
		i += 2
		for k := 0; k < count; k++ {
			if i+2 >= len(f) {
				return nil, false
			}
			off, err1 := strconv.Atoi(f[i])
			gen, err2 := strconv.Atoi(f[i+1])
			if err1 != nil || err2 != nil {
				return nil, false
			}
			if f[i+2] == "n" && start+k > 0 {
				entries = append(entries, xrefEntry{nr: start + k, gen: gen, offset: off})
			}
			i += 3
		}
	}
	return entries, true
}

// pinDates replaces the modification date, and any creation date the writer
// generated itself (one not present in src), with the pinned stamp date.
func pinDates(body, src []byte, stamp string) []byte {
	if !modDateRe.Match(body) && !creDateRe.Match(body) {
		return body
	}
	body = modDateRe.ReplaceAll(body, []byte("/ModDate ("+stamp+")"))
	return creDateRe.ReplaceAllFunc(body, func(match []byte) []byte {
		sub := creDateRe.FindSubmatch(match)
		if bytes.Contains(src, sub[1]) {
			return match
		}
		return []byte("/CreationDate (" + stamp + ")")
	})
}

// pinInfo sets the standard entries named in props on an information
// dictionary object, replacing whatever the writer put there.
func pinInfo(body []byte, props map[string]string) []byte {
	for _, key := range infoKeys {
		val, ok := props[key]
		if !ok {
			continue
		}
		entry := []byte("/" + key + " (" + escapeLiteral(val) + ")")
		if re := infoEntryRe[key]; re.Match(body) {
			body = re.ReplaceAllLiteral(body, entry)
			continue
		}
		end := bytes.LastIndex(body, []byte(">>"))
		if end < 0 {
			continue
		}
		out := make([]byte, 0, len(body)+len(entry))
		out = append(out, body[:end]...)
		out = append(out, entry...)
		body = append(out, body[end:]...)
	}
	return body
}

func escapeLiteral(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}

// pinFileID replaces generated trailer IDs with a digest of the inputs.
// An ID element carried over from the source file is kept.
func pinFileID(trailer, src []byte, opts Options) []byte {
	h := sha256.New()
	h.Write(src)
	h.Write(opts.fingerprint())
	digest := strings.ToUpper(hex.EncodeToString(h.Sum(nil))[:32])

	return fileIDRe.ReplaceAllFunc(trailer, func(match []byte) []byte {
		sub := fileIDRe.FindSubmatch(match)
		first := string(sub[1])
		if first == "" || !bytes.Contains(src, sub[1]) {
			first = digest
		}
		return []byte(fmt.Sprintf("/ID [<%s><%s>]", first, digest))
	})
}

func pdfDate(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format("D:20060102150405Z")
}
