package service

import (
	"context"
	"errors"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ReviewAction is an admin decision on a pending document.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// UploadInput is an initial document upload.
type UploadInput struct {
	DocumentID   uuid.UUID // optional; uuid.Nil lets the server choose
	Uploader     domain.Identity
	Title        string
	MaterialType domain.MaterialType
	IsFree       bool
	Metadata     map[string]interface{}
	ExpiresAt    *time.Time
	ContentType  string
	File         []byte
}

type DocumentService interface {
	Upload(ctx context.Context, in UploadInput) (*domain.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	ListPending(ctx context.Context) ([]domain.Document, error)
	Review(ctx context.Context, id uuid.UUID, action ReviewAction, reason string) (*domain.Document, error)
	Delete(ctx context.Context, caller domain.Identity, id uuid.UUID) error
	AddFavorite(ctx context.Context, userID, documentID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, documentID uuid.UUID) error
	DownloadURL(ctx context.Context, id uuid.UUID) (string, error)
}

type documentService struct {
	*Pipeline
	notifier Notifier
}

func NewDocumentService(p *Pipeline, notifier Notifier) DocumentService {
	return &documentService{Pipeline: p, notifier: notifier}
}

// Upload creates a pending document with its first candidate version and
// schedules the upload-time stamp.
func (s *documentService) Upload(ctx context.Context, in UploadInput) (*domain.Document, error) {
	// 1. Basic Input Validation
	title := cleanTitle(in.Title)
	if title == "" {
		return nil, invalidUpload("title is required")
	}
	if in.MaterialType == "" {
		in.MaterialType = domain.MaterialPersonal
	}
	if !in.MaterialType.Valid() {
		return nil, invalidUpload("materialType must be personal or university")
	}
	if err := s.checkFile(in.File, in.ContentType); err != nil {
		return nil, err
	}

	docID := in.DocumentID
	if docID == uuid.Nil {
		docID = uuid.New()
	} else if _, err := s.store.Documents().GetByID(ctx, docID); err == nil {
		return nil, ErrDocumentExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// 2. Candidate file
	version := &domain.DocumentVersion{
		ID:         uuid.New(),
		DocumentID: docID,
		UploaderID: in.Uploader.UserID,
		Title:      title,
		Status:     domain.VersionPending,
		StampState: domain.StampPending,
		UploadedAt: time.Now().UTC(),
	}
	var err error
	version.File, version.ContentHash, err = s.putCandidate(ctx, docID, version.ID, in.File)
	if err != nil {
		return nil, err
	}

	// 3. Document (pending, nothing live yet) and version together
	doc := &domain.Document{
		ID:             docID,
		Title:          title,
		OwnerID:        in.Uploader.UserID,
		MaterialType:   in.MaterialType,
		Metadata:       datatypes.JSONMap(in.Metadata),
		IsFree:         in.IsFree,
		ApprovalStatus: domain.ApprovalPending,
		ExpiresAt:      in.ExpiresAt,
	}
	err = s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return tx.Versions().Create(ctx, version)
	})
	if err != nil {
		s.releaseBlob(ctx, version.File.Handle)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDocumentExists
		}
		return nil, err
	}

	// 4. Stamp job; a document that can never be stamped is rolled back
	if _, err := s.enqueue(ctx, s.stampJob(in.Uploader, docID, version)); err != nil {
		if derr := s.removeDocument(ctx, docID); derr != nil {
			s.log.WithError(derr).WithField("documentId", docID).Error("could not roll back unscheduled upload")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"documentId": docID,
		"versionId":  version.ID,
		"ownerId":    doc.OwnerID,
	}).Info("document uploaded")
	return doc, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := s.store.Documents().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) ListPending(ctx context.Context) ([]domain.Document, error) {
	return s.store.Documents().ListByStatus(ctx, domain.ApprovalPending)
}

// Review approves or rejects a pending document. Approval promotes the most
// recent pending version, so it needs a finished stamp just like any promotion.
func (s *documentService) Review(ctx context.Context, id uuid.UUID, action ReviewAction, reason string) (*domain.Document, error) {
	if action != ReviewApprove && action != ReviewReject {
		return nil, ErrInvalidAction
	}
	if action == ReviewReject && cleanTitle(reason) == "" {
		return nil, ErrReasonRequired
	}

	var doc *domain.Document
	err := s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		d, err := tx.Documents().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		if d.ApprovalStatus != domain.ApprovalPending {
			return ErrInvalidState
		}

		if action == ReviewReject {
			if err := d.Reject(cleanTitle(reason)); err != nil {
				return ErrInvalidState
			}
			doc = d
			return tx.Documents().Update(ctx, d)
		}

		v, err := tx.Versions().GetLatestPending(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidState
			}
			return err
		}
		if err := promote(ctx, tx, d, v); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"documentId": id, "action": action}).Info("document reviewed")
	if action == ReviewApprove {
		s.notifier.DocumentPublished(doc, domain.NotificationNewDocument)
	}
	return doc, nil
}

// Delete removes the document with its versions and favorites, then releases
// every blob they referenced.
func (s *documentService) Delete(ctx context.Context, caller domain.Identity, id uuid.UUID) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !caller.IsOwnerOrElevated(doc.OwnerID) {
		return ErrForbidden
	}
	return s.removeDocument(ctx, id)
}

func (s *documentService) removeDocument(ctx context.Context, id uuid.UUID) error {
	handles := map[string]struct{}{}
	err := s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		doc, err := tx.Documents().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		versions, err := tx.Versions().ListByDocument(ctx, id)
		if err != nil {
			return err
		}
		for _, v := range versions {
			handles[v.File.Handle] = struct{}{}
		}
		handles[doc.LiveFile.Handle] = struct{}{}

		if err := tx.Versions().DeleteByDocument(ctx, id); err != nil {
			return err
		}
		if err := tx.Favorites().DeleteByDocument(ctx, id); err != nil {
			return err
		}
		return tx.Documents().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	// Rows are gone; blob cleanup is best effort.
	for handle := range handles {
		s.releaseBlob(ctx, handle)
	}
	s.log.WithFields(logrus.Fields{"documentId": id, "blobs": len(handles)}).Info("document deleted")
	return nil
}

func (s *documentService) AddFavorite(ctx context.Context, userID, documentID uuid.UUID) error {
	if _, err := s.Get(ctx, documentID); err != nil {
		return err
	}
	return s.store.Favorites().Add(ctx, userID, documentID)
}

func (s *documentService) RemoveFavorite(ctx context.Context, userID, documentID uuid.UUID) error {
	return s.store.Favorites().Remove(ctx, userID, documentID)
}

// DownloadURL presigns a GET on the live master for admins.
func (s *documentService) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !doc.HasLiveFile() {
		return "", ErrDocumentNotFound
	}
	return s.objects.PresignedDownloadURL(ctx, doc.LiveFile.Handle, storage.DefaultPresignedURLExpiry)
}
