package domain

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// VersionStatus is the review state of a DocumentVersion.
type VersionStatus string

const (
	VersionPending  VersionStatus = "pending"
	VersionApproved VersionStatus = "approved"
)

func (s VersionStatus) Valid() bool {
	return s == VersionPending || s == VersionApproved
}

func (s VersionStatus) Value() (driver.Value, error) {
	return enumValue(string(s), "version status", func(v string) bool { return VersionStatus(v).Valid() })
}

func (s *VersionStatus) Scan(src any) error {
	v, err := scanEnum(src, "version status", func(v string) bool { return VersionStatus(v).Valid() })
	if err != nil {
		return err
	}
	*s = VersionStatus(v)
	return nil
}

// StampState tracks the upload-time stamp applied to a version's candidate file.
type StampState string

const (
	StampPending StampState = "pending"
	StampApplied StampState = "stamped"
	StampFailed  StampState = "failed"
)

func (s StampState) Valid() bool {
	switch s {
	case StampPending, StampApplied, StampFailed:
		return true
	}
	return false
}

func (s StampState) Value() (driver.Value, error) {
	return enumValue(string(s), "stamp state", func(v string) bool { return StampState(v).Valid() })
}

func (s *StampState) Scan(src any) error {
	v, err := scanEnum(src, "stamp state", func(v string) bool { return StampState(v).Valid() })
	if err != nil {
		return err
	}
	*s = StampState(v)
	return nil
}

// DocumentVersion is one candidate file revision of a Document.
// At most one version per document is current-live; the partial unique index enforces it.
type DocumentVersion struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID        uuid.UUID     `gorm:"type:uuid;not null;index:idx_versions_document;uniqueIndex:idx_versions_one_live,where:is_current_live = true" json:"documentId"`
	UploaderID        uuid.UUID     `gorm:"type:uuid;not null" json:"uploaderId"`
	Title             string        `gorm:"size:255;not null" json:"title"`
	File              FileRef       `gorm:"embedded;embeddedPrefix:file_" json:"file"`
	ContentHash       string        `gorm:"size:64;not null" json:"contentHash"`
	Status            VersionStatus `gorm:"type:varchar(16);not null" json:"status"`
	IsCurrentLive     bool          `gorm:"not null;default:false" json:"isCurrentLive"`
	PreviousVersionID *uuid.UUID    `gorm:"type:uuid" json:"previousVersionId,omitempty"`
	StampState        StampState    `gorm:"type:varchar(16);not null" json:"stampState"`
	UploadedAt        time.Time     `gorm:"not null" json:"uploadedAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// MarkLive flags the version as the approved, current-live revision.
func (v *DocumentVersion) MarkLive() {
	v.Status = VersionApproved
	v.IsCurrentLive = true
}

// Stamped reports whether the candidate file already carries its upload stamp.
func (v *DocumentVersion) Stamped() bool {
	return v.StampState == StampApplied
}
