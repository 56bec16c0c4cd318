package domain

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ApprovalStatus is the review state of a Document.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

func (s ApprovalStatus) Value() (driver.Value, error) {
	return enumValue(string(s), "approval status", func(v string) bool { return ApprovalStatus(v).Valid() })
}

func (s *ApprovalStatus) Scan(src any) error {
	v, err := scanEnum(src, "approval status", func(v string) bool { return ApprovalStatus(v).Valid() })
	if err != nil {
		return err
	}
	*s = ApprovalStatus(v)
	return nil
}

// MaterialType classifies where a note comes from.
type MaterialType string

const (
	MaterialPersonal   MaterialType = "personal"
	MaterialUniversity MaterialType = "university"
)

func (m MaterialType) Valid() bool {
	return m == MaterialPersonal || m == MaterialUniversity
}

// FileRef points at a blob in the object store.
// URL is the stable public address, Handle the opaque key used for reads, overwrites and deletes.
type FileRef struct {
	URL    string `gorm:"size:1024" json:"url"`
	Handle string `gorm:"size:512" json:"-"`
}

func (f FileRef) IsZero() bool {
	return f.Handle == ""
}

// Document is one logical note, independent of which version is live.
type Document struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string            `gorm:"size:255;not null" json:"title"`
	OwnerID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"ownerId"`
	MaterialType    MaterialType      `gorm:"type:varchar(16);not null" json:"materialType"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	IsFree          bool              `gorm:"not null;default:false" json:"isFree"`
	ApprovalStatus  ApprovalStatus    `gorm:"type:varchar(16);not null;index" json:"approvalStatus"`
	RejectionReason *string           `json:"rejectionReason,omitempty"`
	LiveFile        FileRef           `gorm:"embedded;embeddedPrefix:live_file_" json:"liveFile"`
	ViewCount       int64             `gorm:"not null;default:0" json:"viewCount"`
	ExpiresAt       *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

var (
	errApprovedWithoutFile = errors.New("approved document has no live file")
	errNotPending          = errors.New("document is not pending review")
)

// HasLiveFile reports whether the document currently serves a file.
func (d *Document) HasLiveFile() bool {
	return !d.LiveFile.IsZero()
}

// IsApproved reports whether the document is approved and servable.
func (d *Document) IsApproved() bool {
	return d.ApprovalStatus == ApprovalApproved && d.HasLiveFile()
}

// IsExpired reports whether the optional expiry has passed.
func (d *Document) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// Validate checks the status/live-file invariant.
func (d *Document) Validate() error {
	if !d.ApprovalStatus.Valid() {
		return errors.New("invalid approval status")
	}
	if d.ApprovalStatus == ApprovalApproved && !d.HasLiveFile() {
		return errApprovedWithoutFile
	}
	return nil
}

// Promote makes v the document's live content.
func (d *Document) Promote(v *DocumentVersion) {
	d.Title = v.Title
	d.LiveFile = v.File
	d.ApprovalStatus = ApprovalApproved
	d.RejectionReason = nil
}

// Reject moves a pending document to rejected with the reviewer's reason.
func (d *Document) Reject(reason string) error {
	if d.ApprovalStatus != ApprovalPending {
		return errNotPending
	}
	d.ApprovalStatus = ApprovalRejected
	d.RejectionReason = &reason
	return nil
}
