package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// DefaultTimeout bounds a single object-store call when none is configured.
const DefaultTimeout = 15 * time.Second

const ContentTypePDF = "application/pdf"

var (
	// ErrStorageUnavailable marks transient failures: timeouts, network errors, 5xx.
	ErrStorageUnavailable = errors.New("object storage unavailable")
	ErrObjectNotFound     = errors.New("object not found in storage")
)

// ObjectStore defines the blob operations the document pipeline needs.
// A handle is the opaque key returned by Put; Put on an existing handle overwrites it.
type ObjectStore interface {
	Put(ctx context.Context, handle string, data []byte, contentType string) (domain.FileRef, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
	// PresignedDownloadURL creates a temporary URL for GET requests against the raw object.
	PresignedDownloadURL(ctx context.Context, handle string, expires time.Duration) (string, error)
}

// ContentHash returns the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VersionHandle builds the content-addressed key for a version's file.
func VersionHandle(documentID, versionID uuid.UUID, contentHash string) string {
	short := contentHash
	if len(short) > 16 {
		short = short[:16]
	}
	return fmt.Sprintf("notes/%s/%s-%s.pdf", documentID, versionID, short)
}

// StampedHandle returns a fresh key next to handle for a stamped copy of it.
// Every call yields a new key, so a stamped copy never overwrites a file
// that is already referenced.
func StampedHandle(handle string) string {
	base := strings.TrimSuffix(handle, ".pdf")
	return fmt.Sprintf("%s.s%s.pdf", base, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// publicURL joins a base URL and a handle.
func publicURL(base, handle string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(handle, "/")
}

// unavailable wraps err as a transient storage failure.
func unavailable(op, handle string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrStorageUnavailable, op, handle, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
