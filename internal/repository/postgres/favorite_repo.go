package postgres

import (
	"context"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type favoriteRepository struct {
	db *gorm.DB
}

// Add is idempotent.
func (r *favoriteRepository) Add(ctx context.Context, userID, documentID uuid.UUID) error {
	fav := domain.Favorite{UserID: userID, DocumentID: documentID}
	return translate(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&fav).Error)
}

func (r *favoriteRepository) Remove(ctx context.Context, userID, documentID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).
		Delete(&domain.Favorite{}, "user_id = ? AND document_id = ?", userID, documentID).Error)
}

func (r *favoriteRepository) ListUserIDsByDocument(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.db.WithContext(ctx).Model(&domain.Favorite{}).
		Where("document_id = ?", documentID).
		Pluck("user_id", &ids).Error
	return ids, translate(err)
}

func (r *favoriteRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).
		Delete(&domain.Favorite{}, "document_id = ?", documentID).Error)
}
