package service

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrVersionNotFound  = errors.New("version not found")
	ErrDocumentExists   = errors.New("a document with this id already exists")
	ErrForbidden        = errors.New("not allowed to modify this document")
	ErrInvalidState     = errors.New("operation not valid for the document's current status")
	ErrAlreadyPromoted  = errors.New("version is already live")
	ErrStampPending     = errors.New("version is still being stamped")
	ErrAccessDenied     = errors.New("a subscription is required to view this document")
	ErrReasonRequired   = errors.New("a rejection reason is required")
	ErrInvalidAction    = errors.New("review action must be approve or reject")
	ErrQueueUnavailable = errors.New("could not schedule document processing")
	ErrStorageFailed    = errors.New("could not store the uploaded file")
	ErrRenderFailed     = errors.New("could not render document")
	ErrRenderBusy       = errors.New("too many documents are being rendered")

	ErrDeadLetterNotFound = errors.New("dead letter not found")
	ErrAlreadyReplayed    = errors.New("dead letter was already replayed")
	ErrNothingToReplay    = errors.New("version is already stamped or gone; nothing to replay")

	// ErrInvalidUpload is matched by every UploadError.
	ErrInvalidUpload = errors.New("invalid upload")
)

// UploadError carries the human-readable reason an upload was refused.
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("invalid upload: %s", e.Reason)
}

func (e *UploadError) Is(target error) bool {
	return target == ErrInvalidUpload
}

func invalidUpload(format string, args ...any) error {
	return &UploadError{Reason: fmt.Sprintf(format, args...)}
}
