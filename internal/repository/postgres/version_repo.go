package postgres

import (
	"context"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type versionRepository struct {
	db *gorm.DB
}

func (r *versionRepository) base() base[domain.DocumentVersion] {
	return base[domain.DocumentVersion]{db: r.db}
}

func (r *versionRepository) Create(ctx context.Context, v *domain.DocumentVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.base().create(ctx, v)
}

func (r *versionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DocumentVersion, error) {
	return r.base().first(ctx, "id = ?", id)
}

func (r *versionRepository) GetCurrentLive(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	return r.base().first(ctx, "document_id = ? AND is_current_live = ?", documentID, true)
}

func (r *versionRepository) GetLatestPending(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND status = ?", documentID, domain.VersionPending).
		Order("uploaded_at DESC").
		First(&v).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// ListByDocument returns versions oldest first.
func (r *versionRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error) {
	versions := []domain.DocumentVersion{}
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("uploaded_at ASC").
		Find(&versions).Error
	return versions, translate(err)
}

func (r *versionRepository) ClearCurrentLive(ctx context.Context, documentID, exceptID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Model(&domain.DocumentVersion{}).
		Where("document_id = ? AND id <> ? AND is_current_live = ?", documentID, exceptID, true).
		Update("is_current_live", false).Error)
}

func (r *versionRepository) Update(ctx context.Context, v *domain.DocumentVersion) error {
	return r.base().save(ctx, v)
}

func (r *versionRepository) TransitionStampState(ctx context.Context, id uuid.UUID, from, to domain.StampState) error {
	return r.updateUnlessLive(ctx, id, from, map[string]any{"stamp_state": to})
}

func (r *versionRepository) PublishStampedFile(ctx context.Context, id uuid.UUID, file domain.FileRef) error {
	return r.updateUnlessLive(ctx, id, domain.StampPending, map[string]any{
		"file_url":    file.URL,
		"file_handle": file.Handle,
		"stamp_state": domain.StampApplied,
	})
}

// updateUnlessLive applies values to a version in stamp state from that is
// not the live one, in a single conditional UPDATE.
func (r *versionRepository) updateUnlessLive(ctx context.Context, id uuid.UUID, from domain.StampState, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.DocumentVersion{}).
		Where("id = ? AND stamp_state = ? AND is_current_live = ?", id, from, false).
		Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return repository.ErrUpdateFailed
}

func (r *versionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&domain.DocumentVersion{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *versionRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).
		Delete(&domain.DocumentVersion{}, "document_id = ?", documentID).Error)
}
