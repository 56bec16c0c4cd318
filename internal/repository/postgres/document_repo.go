package postgres

import (
	"context"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentRepository struct {
	db *gorm.DB
}

func (r *documentRepository) base() base[domain.Document] { return base[domain.Document]{db: r.db} }

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return r.base().create(ctx, doc)
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return r.base().first(ctx, "id = ?", id)
}

// GetForUpdate takes the row lock that serialises every mutation of one document.
// Must be called on a transaction-bound store.
func (r *documentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

func (r *documentRepository) Update(ctx context.Context, doc *domain.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	return r.base().save(ctx, doc)
}

func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&domain.Document{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *documentRepository) ListByStatus(ctx context.Context, status domain.ApprovalStatus) ([]domain.Document, error) {
	docs := []domain.Document{}
	err := r.db.WithContext(ctx).
		Where("approval_status = ?", status).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, translate(err)
}

// IncrementViewCount leaves updated_at alone; it feeds the view stamp timestamp.
func (r *documentRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
