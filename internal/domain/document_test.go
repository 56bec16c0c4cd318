package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_PromoteCopiesVersionAndApproves(t *testing.T) {
	reason := "blurry scan"
	doc := &Document{ID: uuid.New(), Title: "old", ApprovalStatus: ApprovalRejected, RejectionReason: &reason}
	v := &DocumentVersion{Title: "new", File: FileRef{URL: "https://cdn/x.pdf", Handle: "notes/x.pdf"}}

	doc.Promote(v)

	assert.Equal(t, "new", doc.Title)
	assert.Equal(t, v.File, doc.LiveFile)
	assert.Equal(t, ApprovalApproved, doc.ApprovalStatus)
	assert.Nil(t, doc.RejectionReason)
	assert.NoError(t, doc.Validate())
}

func TestDocument_ValidateRejectsApprovedWithoutFile(t *testing.T) {
	doc := &Document{ApprovalStatus: ApprovalApproved}
	assert.Error(t, doc.Validate())
	assert.False(t, doc.IsApproved())
}

func TestDocument_RejectOnlyFromPending(t *testing.T) {
	doc := &Document{ApprovalStatus: ApprovalPending}
	require.NoError(t, doc.Reject("duplicate"))
	assert.Equal(t, ApprovalRejected, doc.ApprovalStatus)
	require.NotNil(t, doc.RejectionReason)
	assert.Equal(t, "duplicate", *doc.RejectionReason)

	assert.Error(t, doc.Reject("again"))
}

func TestDocument_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Document{}).IsExpired(now))
	assert.True(t, (&Document{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&Document{ExpiresAt: &future}).IsExpired(now))
}

func TestEnumScanRejectsUnknownValues(t *testing.T) {
	var s ApprovalStatus
	require.NoError(t, s.Scan([]byte("approved")))
	assert.Equal(t, ApprovalApproved, s)
	assert.Error(t, s.Scan("archived"))
	assert.Error(t, s.Scan(nil))

	var vs VersionStatus
	assert.Error(t, vs.Scan("rejected"))

	_, err := StampState("done").Value()
	assert.Error(t, err)
}

func TestIdentity_IsOwnerOrElevated(t *testing.T) {
	owner := uuid.New()
	assert.True(t, Identity{UserID: owner, Role: RoleUser}.IsOwnerOrElevated(owner))
	assert.True(t, Identity{UserID: uuid.New(), Role: RoleAdmin}.IsOwnerOrElevated(owner))
	assert.False(t, Identity{UserID: uuid.New(), Role: RoleUser}.IsOwnerOrElevated(owner))
	assert.False(t, Identity{Role: RoleUser}.IsOwnerOrElevated(uuid.Nil))
}

func TestWatermarkJob_Validate(t *testing.T) {
	job := WatermarkJob{Kind: JobProvenanceStamp, StorageHandle: "h", StampText: "Uploaded by ana on Learnify"}
	assert.NoError(t, job.Validate())

	job.Kind = "rasterize"
	assert.ErrorIs(t, job.Validate(), ErrUnknownJobKind)

	job = WatermarkJob{Kind: JobProducerStamp, StampText: "x"}
	assert.ErrorIs(t, job.Validate(), ErrJobMissingHandle)

	retried := WatermarkJob{RetryCount: 1}.Retry()
	assert.Equal(t, 2, retried.RetryCount)
}
