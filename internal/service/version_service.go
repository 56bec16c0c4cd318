package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// VersionService manages candidate revisions of approved documents.
type VersionService interface {
	SubmitVersion(ctx context.Context, documentID uuid.UUID, uploader domain.Identity, newTitle string, file []byte, contentType string) (*domain.DocumentVersion, error)
	PromoteVersion(ctx context.Context, versionID uuid.UUID) (*domain.Document, *domain.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error)
}

type versionService struct {
	*Pipeline
	notifier Notifier
}

func NewVersionService(p *Pipeline, notifier Notifier) VersionService {
	return &versionService{Pipeline: p, notifier: notifier}
}

// SubmitVersion stores a new pending version of an approved document and
// schedules its provenance stamp.
func (s *versionService) SubmitVersion(ctx context.Context, documentID uuid.UUID, uploader domain.Identity, newTitle string, file []byte, contentType string) (*domain.DocumentVersion, error) {
	// 1. Basic Input Validation
	newTitle = cleanTitle(newTitle)
	if newTitle == "" {
		return nil, invalidUpload("newTitle is required")
	}
	if err := s.checkFile(file, contentType); err != nil {
		return nil, err
	}

	// 2. Ownership and state, checked before any bytes are stored
	doc, err := s.store.Documents().GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if err := checkCanVersion(doc, uploader); err != nil {
		return nil, err
	}

	// 3. Candidate file first, so the row never points at a missing blob
	version := &domain.DocumentVersion{
		ID:         uuid.New(),
		DocumentID: documentID,
		UploaderID: uploader.UserID,
		Title:      newTitle,
		Status:     domain.VersionPending,
		StampState: domain.StampPending,
		UploadedAt: time.Now().UTC(),
	}
	version.File, version.ContentHash, err = s.putCandidate(ctx, documentID, version.ID, file)
	if err != nil {
		return nil, err
	}

	// 4. Row, linked to the version it would supersede
	err = s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		locked, err := tx.Documents().GetForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if err := checkCanVersion(locked, uploader); err != nil {
			return err
		}
		live, err := tx.Versions().GetCurrentLive(ctx, documentID)
		switch {
		case err == nil:
			version.PreviousVersionID = &live.ID
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		return tx.Versions().Create(ctx, version)
	})
	if err != nil {
		s.releaseBlob(ctx, version.File.Handle)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	// 5. Provenance stamp; without it the version could never be promoted
	if _, err := s.enqueue(ctx, s.stampJob(uploader, documentID, version)); err != nil {
		s.discardVersion(ctx, version)
		return nil, err
	}
	return version, nil
}

func checkCanVersion(doc *domain.Document, uploader domain.Identity) error {
	if doc.OwnerID != uploader.UserID {
		return ErrForbidden
	}
	if !doc.IsApproved() {
		return fmt.Errorf("%w: document is %s", ErrInvalidState, doc.ApprovalStatus)
	}
	return nil
}

// discardVersion undoes a submission whose stamp job could not be scheduled.
func (s *versionService) discardVersion(ctx context.Context, v *domain.DocumentVersion) {
	if err := s.store.Versions().Delete(ctx, v.ID); err != nil {
		s.log.WithError(err).WithField("versionId", v.ID).Error("could not remove unscheduled version")
		return
	}
	s.releaseBlob(ctx, v.File.Handle)
}

// PromoteVersion makes the version the document's live content in one
// transaction under the document row lock.
func (s *versionService) PromoteVersion(ctx context.Context, versionID uuid.UUID) (*domain.Document, *domain.DocumentVersion, error) {
	var (
		doc     *domain.Document
		version *domain.DocumentVersion
	)
	err := s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		v, err := tx.Versions().GetByID(ctx, versionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		d, err := tx.Documents().GetForUpdate(ctx, v.DocumentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		// Re-read under the lock: a concurrent promotion may have committed meanwhile.
		if v, err = tx.Versions().GetByID(ctx, versionID); err != nil {
			return err
		}
		if err := promote(ctx, tx, d, v); err != nil {
			return err
		}
		doc, version = d, v
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"documentId": doc.ID,
		"versionId":  version.ID,
	}).Info("version promoted")
	s.notifier.DocumentPublished(doc, domain.NotificationNewVersion)
	return doc, version, nil
}

func (s *versionService) ListVersions(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error) {
	if _, err := s.store.Documents().GetByID(ctx, documentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return s.store.Versions().ListByDocument(ctx, documentID)
}

// promote flips the live version of a locked document. The old holder is
// cleared before the new one is set so the one-live index never sees two.
func promote(ctx context.Context, tx repository.Store, doc *domain.Document, v *domain.DocumentVersion) error {
	if v.DocumentID != doc.ID {
		return ErrInvalidState
	}
	if v.IsCurrentLive {
		return ErrAlreadyPromoted
	}
	switch v.StampState {
	case domain.StampPending:
		return ErrStampPending
	case domain.StampFailed:
		return fmt.Errorf("%w: stamping failed for this version", ErrInvalidState)
	}

	if err := tx.Versions().ClearCurrentLive(ctx, doc.ID, v.ID); err != nil {
		return err
	}
	v.MarkLive()
	if err := tx.Versions().Update(ctx, v); err != nil {
		return err
	}
	doc.Promote(v)
	return tx.Documents().Update(ctx, doc)
}

// StampRecorder reports worker outcomes onto version rows.
type StampRecorder struct {
	store repository.Store
}

func NewStampRecorder(store repository.Store) *StampRecorder {
	return &StampRecorder{store: store}
}

// NeedsStamp is true only for a pending version that is not live. Deleted,
// live and already stamped versions keep their file as it is.
func (r *StampRecorder) NeedsStamp(ctx context.Context, versionID uuid.UUID) (bool, error) {
	v, err := r.store.Versions().GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !v.IsCurrentLive && v.StampState == domain.StampPending, nil
}

// PublishStamp points the version at its stamped file and returns the handle
// it replaced. The swap is refused with repository.ErrUpdateFailed once the
// version is live or no longer pending.
func (r *StampRecorder) PublishStamp(ctx context.Context, versionID uuid.UUID, file domain.FileRef) (string, error) {
	var previous string
	err := r.store.WithinTransaction(ctx, func(tx repository.Store) error {
		v, err := tx.Versions().GetByID(ctx, versionID)
		if err != nil {
			return err
		}
		previous = v.File.Handle
		return tx.Versions().PublishStampedFile(ctx, versionID, file)
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// MarkFailed moves a pending version to failed. Stamped and live versions are
// left alone and yield repository.ErrUpdateFailed.
func (r *StampRecorder) MarkFailed(ctx context.Context, versionID uuid.UUID) error {
	return r.store.Versions().TransitionStampState(ctx, versionID, domain.StampPending, domain.StampFailed)
}
