package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobKind tags the variant carried by a WatermarkJob.
type JobKind string

const (
	// JobProvenanceStamp draws the uploader's identity onto every page of the candidate file.
	JobProvenanceStamp JobKind = "upload-provenance-stamp"
	// JobProducerStamp writes publisher properties for admin uploads; no visible mark.
	JobProducerStamp JobKind = "admin-producer-stamp"
)

func (k JobKind) Valid() bool {
	return k == JobProvenanceStamp || k == JobProducerStamp
}

var (
	ErrUnknownJobKind   = errors.New("unknown watermark job kind")
	ErrJobMissingHandle = errors.New("watermark job has no storage handle")
	ErrJobMissingText   = errors.New("watermark job has no stamp text")
)

// WatermarkJob is the queue message for asynchronous stamping.
// Fields are only ever added (as optional) so in-flight messages keep decoding.
type WatermarkJob struct {
	ID            string    `json:"jobId"`
	Kind          JobKind   `json:"jobKind"`
	StorageHandle string    `json:"storageHandle"`
	StampText     string    `json:"stampText"`
	DocumentID    string    `json:"documentId"`
	VersionID     string    `json:"versionId,omitempty"`
	RetryCount    int       `json:"retryCount"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

// Validate checks the job against its kind's payload requirements.
func (j WatermarkJob) Validate() error {
	if !j.Kind.Valid() {
		return ErrUnknownJobKind
	}
	if j.StorageHandle == "" {
		return ErrJobMissingHandle
	}
	if j.StampText == "" {
		return ErrJobMissingText
	}
	return nil
}

// Retry returns a copy scheduled for another delivery.
func (j WatermarkJob) Retry() WatermarkJob {
	j.RetryCount++
	return j
}

// Version returns the version the job stamps, if it names a valid one.
func (j WatermarkJob) Version() (uuid.UUID, bool) {
	if j.VersionID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(j.VersionID)
	return id, err == nil
}
