package watermark

import (
	"time"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
)

// ProvenanceOptions is the static upload-time mark: small grey text in the
// bottom-left corner naming the uploader.
func ProvenanceOptions(text string, points int, at time.Time) Options {
	if points <= 0 {
		points = 10
	}
	return Options{
		VisibleText:  text,
		TextOpacity:  0.6,
		TextPoints:   points,
		TextColor:    Grey,
		TextPosition: BottomLeft,
		TextOffsetX:  40,
		TextOffsetY:  40,
		Timestamp:    at,
	}
}

// ProducerOptions tags admin uploads through the standard Producer and
// Creator information entries, with no visible mark.
func ProducerOptions(producer, creator string, at time.Time) Options {
	return Options{
		Properties: map[string]string{
			"Producer": producer,
			"Creator":  creator,
		},
		Timestamp: at,
	}
}

// ViewerOptions is the per-request mark naming the reader, drawn over the
// upload stamp of the master. Owners and admins get the source back untouched.
func ViewerOptions(viewer domain.Identity, ownerID uuid.UUID, points int, logo []byte, at time.Time) Options {
	if points <= 0 {
		points = 42
	}
	opts := Options{
		VisibleText:         "Viewed by " + viewer.Username,
		TextOpacity:         0.12,
		TextRotationDegrees: -45,
		TextPoints:          points,
		TextColor:           Color{R: 0.8, G: 0.2, B: 0.2},
		TextPosition:        Center,
		Overlay:             true,
		SkipIfOwnerOrAdmin:  true,
		Requester:           viewer,
		OwnerID:             ownerID,
		Timestamp:           at,
	}
	if len(logo) > 0 {
		opts.LogoBytes = logo
		opts.LogoOpacity = 0.16
		opts.LogoScale = 0.15
		opts.LogoCornerMargin = 20
	}
	return opts
}
