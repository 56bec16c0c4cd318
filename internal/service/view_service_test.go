package service

import (
	"context"
	"testing"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderForViewer_OwnerGetsMaster(t *testing.T) {
	h := newHarness(t, config.AccessConfig{})
	owner := h.user("ana", domain.RoleUser)
	admin := h.user("root", domain.RoleAdmin)
	doc := h.approved(owner, "Calculus I")

	master, err := h.objects.Get(context.Background(), doc.LiveFile.Handle)
	require.NoError(t, err)

	for _, viewer := range []domain.Identity{owner, admin} {
		body, contentType, name, err := h.views.RenderForViewer(context.Background(), doc.ID, viewer)
		require.NoError(t, err)
		assert.Equal(t, master, body)
		assert.Equal(t, "application/pdf", contentType)
		assert.Equal(t, "Calculus I.pdf", name)
	}
}

func TestRenderForViewer_StampsOtherViewers(t *testing.T) {
	h := newHarness(t, config.AccessConfig{})
	owner := h.user("ana", domain.RoleUser)
	reader := h.user("bo", domain.RoleUser)
	doc := h.approved(owner, "Calculus I")

	master, err := h.objects.Get(context.Background(), doc.LiveFile.Handle)
	require.NoError(t, err)

	body, _, _, err := h.views.RenderForViewer(context.Background(), doc.ID, reader)
	require.NoError(t, err)
	assert.NotEqual(t, master, body)
	assert.Positive(t, testutil.CountText(body, "Viewed by bo"))
	require.Positive(t, testutil.CountText(master, "Uploaded by ana on Learnify"))
	assert.Equal(t, testutil.CountText(master, "Uploaded by ana on Learnify"), testutil.CountText(body, "Uploaded by ana on Learnify"),
		"readers still see who uploaded the document")

	again, _, _, err := h.views.RenderForViewer(context.Background(), doc.ID, reader)
	require.NoError(t, err)
	assert.Equal(t, body, again, "same viewer and revision render identically")

	stored, err := h.objects.Get(context.Background(), doc.LiveFile.Handle)
	require.NoError(t, err)
	assert.Equal(t, master, stored, "views never touch the master")
}

func TestRenderForViewer_OnlyApprovedUnexpiredDocuments(t *testing.T) {
	h := newHarness(t, config.AccessConfig{})
	owner := h.user("ana", domain.RoleUser)
	reader := h.user("bo", domain.RoleUser)
	ctx := context.Background()

	pending := h.upload(owner, "Draft", "draft")
	_, _, _, err := h.views.RenderForViewer(ctx, pending.ID, reader)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, _, _, err = h.views.RenderForViewer(ctx, uuid.New(), reader)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	past := time.Now().Add(-time.Hour)
	expired, err := h.docs.Upload(ctx, UploadInput{
		Uploader:    owner,
		Title:       "Old exam",
		ContentType: "application/pdf",
		File:        testutil.PDF("2019"),
		ExpiresAt:   &past,
	})
	require.NoError(t, err)
	h.drain()
	_, err = h.docs.Review(ctx, expired.ID, ReviewApprove, "")
	require.NoError(t, err)

	_, _, _, err = h.views.RenderForViewer(ctx, expired.ID, reader)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestRenderForViewer_FreeViewLimit(t *testing.T) {
	h := newHarness(t, config.AccessConfig{SubscriptionEnabled: true, FreeViewLimit: 2})
	owner := h.user("ana", domain.RoleUser)
	reader := h.user("bo", domain.RoleUser)
	ctx := context.Background()
	doc := h.approved(owner, "Paid notes")

	for i := 0; i < 2; i++ {
		_, _, _, err := h.views.RenderForViewer(ctx, doc.ID, reader)
		require.NoError(t, err)
	}
	_, _, _, err := h.views.RenderForViewer(ctx, doc.ID, reader)
	assert.ErrorIs(t, err, ErrAccessDenied)

	// Owners are never gated.
	_, _, _, err = h.views.RenderForViewer(ctx, doc.ID, owner)
	assert.NoError(t, err)

	free, err := h.docs.Upload(ctx, UploadInput{
		Uploader:    owner,
		Title:       "Free sample",
		IsFree:      true,
		ContentType: "application/pdf",
		File:        testutil.PDF("sample"),
	})
	require.NoError(t, err)
	h.drain()
	_, err = h.docs.Review(ctx, free.ID, ReviewApprove, "")
	require.NoError(t, err)

	_, _, _, err = h.views.RenderForViewer(ctx, free.ID, reader)
	assert.NoError(t, err)
}

func TestRenderForViewer_SubscribersAreNotCounted(t *testing.T) {
	h := newHarness(t, config.AccessConfig{SubscriptionEnabled: true, FreeViewLimit: 0})
	owner := h.user("ana", domain.RoleUser)
	ctx := context.Background()
	doc := h.approved(owner, "Paid notes")

	until := time.Now().Add(24 * time.Hour)
	sub := &domain.User{Username: "cy", Email: "cy@example.com", PasswordHash: "x", Role: domain.RoleUser, SubscriptionExpiresAt: &until}
	require.NoError(t, h.store.Users().Create(ctx, sub))

	_, _, _, err := h.views.RenderForViewer(ctx, doc.ID, domain.Identity{UserID: sub.ID, Username: sub.Username, Role: sub.Role})
	assert.NoError(t, err)

	reader := h.user("bo", domain.RoleUser)
	_, _, _, err = h.views.RenderForViewer(ctx, doc.ID, reader)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestRenderForViewer_RecordsViews(t *testing.T) {
	h := newHarness(t, config.AccessConfig{})
	owner := h.user("ana", domain.RoleUser)
	reader := h.user("bo", domain.RoleUser)
	ctx := context.Background()
	doc := h.approved(owner, "Counted")

	for i := 0; i < 3; i++ {
		_, _, _, err := h.views.RenderForViewer(ctx, doc.ID, reader)
		require.NoError(t, err)
	}
	h.views.Wait()

	stored, err := h.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stored.ViewCount)

	rec, err := h.viewLogs.Get(ctx, reader.UserID, doc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rec.Views)
}

func TestRenderForViewer_StorageOutage(t *testing.T) {
	h := newHarness(t, config.AccessConfig{})
	owner := h.user("ana", domain.RoleUser)
	reader := h.user("bo", domain.RoleUser)
	doc := h.approved(owner, "Flaky")

	// One transient failure is absorbed by the retry.
	h.objects.FailNext(1)
	_, _, _, err := h.views.RenderForViewer(context.Background(), doc.ID, reader)
	require.NoError(t, err)

	h.objects.FailNext(2)
	_, _, _, err = h.views.RenderForViewer(context.Background(), doc.ID, reader)
	assert.ErrorIs(t, err, ErrRenderFailed)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Linear Algebra.pdf", filename("Linear Algebra"))
	assert.Equal(t, "a_b.pdf", filename("a/b"))
	assert.Equal(t, "document.pdf", filename("///"))
}
