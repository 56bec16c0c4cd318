// Package watermark stamps identifying marks onto PDF documents.
//
// The engine is a pure transform over byte slices: it performs no I/O and the
// same source plus options always yield the same output bytes. A stamp
// replaces the layers already on the page, so reprocessing a file never stacks
// marks; an Overlay stamp is drawn on top of them instead.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrMalformedDocument is returned for input that is not a readable PDF with at least one page.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrStampFailed is returned when a valid document could not be stamped with the given options.
	ErrStampFailed = errors.New("stamp failed")
)

func init() {
	// Keep pdfcpu from creating a user config directory on first use.
	api.DisableConfigDir()
}

// Engine applies text, logo and property stamps.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	// Plain objects and a classic xref table so the output can be laid out canonically.
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// Validate checks that src is a readable PDF and returns its page count.
func (e *Engine) Validate(src []byte) (pages int, err error) {
	defer recoverMalformed(&err)

	if err := checkEnvelope(src); err != nil {
		return 0, err
	}
	ctx, err := api.ReadContext(bytes.NewReader(src), newConfig())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if ctx.PageCount == 0 {
		return 0, fmt.Errorf("%w: document has no pages", ErrMalformedDocument)
	}
	return ctx.PageCount, nil
}

// Stamp returns src with the layers described by opts applied to every page.
// With SkipIfOwnerOrAdmin set and a matching requester, src is returned as is.
func (e *Engine) Stamp(src []byte, opts Options) (out []byte, err error) {
	if opts.skip() {
		return src, nil
	}
	defer recoverMalformed(&err)

	if _, err := e.Validate(src); err != nil {
		return nil, err
	}

	cur := src
	has := false
	if !opts.Overlay {
		has, err = api.HasWatermarks(bytes.NewReader(cur), newConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	}
	if has {
		cur, err = rewrite(cur, func(rs io.ReadSeeker, w io.Writer) error {
			return api.RemoveWatermarks(rs, w, nil, newConfig())
		})
		if err != nil {
			return nil, fmt.Errorf("%w: remove previous stamp: %v", ErrStampFailed, err)
		}
	}

	if opts.empty() {
		if !has {
			return src, nil
		}
		return canonicalize(cur, src, opts)
	}

	if opts.VisibleText != "" {
		wm, err := api.TextWatermark(opts.VisibleText, opts.textDescription(), true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("%w: text stamp: %v", ErrStampFailed, err)
		}
		if cur, err = addWatermark(cur, wm); err != nil {
			return nil, fmt.Errorf("%w: text stamp: %v", ErrStampFailed, err)
		}
	}

	if len(opts.LogoBytes) > 0 {
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(opts.LogoBytes), opts.logoDescription(), true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("%w: logo stamp: %v", ErrStampFailed, err)
		}
		if cur, err = addWatermark(cur, wm); err != nil {
			return nil, fmt.Errorf("%w: logo stamp: %v", ErrStampFailed, err)
		}
	}

	if len(opts.Properties) > 0 {
		cur, err = rewrite(cur, func(rs io.ReadSeeker, w io.Writer) error {
			return api.AddProperties(rs, w, opts.Properties, newConfig())
		})
		if err != nil {
			return nil, fmt.Errorf("%w: properties: %v", ErrStampFailed, err)
		}
	}

	return canonicalize(cur, src, opts)
}

func addWatermark(src []byte, wm *model.Watermark) ([]byte, error) {
	return rewrite(src, func(rs io.ReadSeeker, w io.Writer) error {
		return api.AddWatermarks(rs, w, nil, wm, newConfig())
	})
}

// rewrite runs one pdfcpu pass from src into a fresh buffer.
func rewrite(src []byte, pass func(io.ReadSeeker, io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := pass(bytes.NewReader(src), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checkEnvelope rejects input without a PDF header or end-of-file marker.
// Truncated uploads fail here before the parser tries to repair them.
func checkEnvelope(src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: empty input", ErrMalformedDocument)
	}
	head := src
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing %%PDF- header", ErrMalformedDocument)
	}
	tail := src
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return fmt.Errorf("%w: missing %%%%EOF marker", ErrMalformedDocument)
	}
	return nil
}

// recoverMalformed turns a parser panic into ErrMalformedDocument.
func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformedDocument, r)
	}
}
