package watermark

import (
	"crypto/sha256"
	"fmt"
	"time"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
)

// Position anchors a stamp on the page.
type Position string

const (
	Center      Position = "c"
	BottomLeft  Position = "bl"
	TopRight    Position = "tr"
	TopLeft     Position = "tl"
	BottomRight Position = "br"
)

// Color is an RGB triple with components in [0,1].
type Color struct {
	R, G, B float64
}

var Grey = Color{R: 0.5, G: 0.5, B: 0.5}

// Options parameterises one stamp run. The zero value stamps nothing.
type Options struct {
	// VisibleText is drawn on every page; empty means no text layer.
	VisibleText         string
	TextOpacity         float64
	TextRotationDegrees float64
	TextPoints          int
	TextColor           Color
	TextPosition        Position
	TextOffsetX         float64
	TextOffsetY         float64

	// LogoBytes is a PNG or JPEG placed in the top-right corner; nil means no logo.
	LogoBytes        []byte
	LogoOpacity      float64
	LogoCornerMargin float64
	LogoScale        float64

	// Properties are written into the document information dictionary.
	// Producer and Creator replace the standard entries.
	Properties map[string]string

	// Overlay keeps the layers already on the page and draws on top of them.
	Overlay bool

	// SkipIfOwnerOrAdmin returns the source untouched when Requester owns the
	// document (OwnerID) or holds an elevated role.
	SkipIfOwnerOrAdmin bool
	Requester          domain.Identity
	OwnerID            uuid.UUID

	// Timestamp becomes the output's modification date. Callers pass a value
	// derived from their inputs (job enqueue time, document update time).
	Timestamp time.Time
}

func (o Options) empty() bool {
	return o.VisibleText == "" && len(o.LogoBytes) == 0 && len(o.Properties) == 0
}

func (o Options) skip() bool {
	return o.SkipIfOwnerOrAdmin && o.Requester.IsOwnerOrElevated(o.OwnerID)
}

func (o Options) textDescription() string {
	points := o.TextPoints
	if points <= 0 {
		points = 12
	}
	pos := o.TextPosition
	if pos == "" {
		pos = Center
	}
	return fmt.Sprintf("fontname:Helvetica, points:%d, scalefactor:1 abs, rotation:%g, opacity:%g, fillcolor:%.3f %.3f %.3f, position:%s, offset:%g %g",
		points, o.TextRotationDegrees, opacity(o.TextOpacity), o.TextColor.R, o.TextColor.G, o.TextColor.B, pos, o.TextOffsetX, o.TextOffsetY)
}

func (o Options) logoDescription() string {
	scale := o.LogoScale
	if scale <= 0 {
		scale = 1
	}
	return fmt.Sprintf("position:tr, offset:%g %g, scalefactor:%g abs, rotation:0, opacity:%g",
		-o.LogoCornerMargin, -o.LogoCornerMargin, scale, opacity(o.LogoOpacity))
}

// fingerprint identifies the inputs that shape the output bytes.
func (o Options) fingerprint() []byte {
	logo := sha256.Sum256(o.LogoBytes)
	return []byte(fmt.Sprintf("%s|%s|%s|%x|%v|%t|%d",
		o.VisibleText, o.textDescription(), o.logoDescription(), logo, o.Properties, o.Overlay, o.Timestamp.UTC().Unix()))
}

func opacity(v float64) float64 {
	if v <= 0 || v > 1 {
		return 1
	}
	return v
}
