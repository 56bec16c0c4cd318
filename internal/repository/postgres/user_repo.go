package postgres

import (
	"context"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) base() base[domain.User] { return base[domain.User]{db: r.db} }

// Create inserts a new user. A taken email or username yields repository.ErrDuplicate.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return r.base().create(ctx, user)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.base().first(ctx, "email = ?", email)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.base().first(ctx, "id = ?", id)
}

// ConsumeFreeView is a single conditional UPDATE, so concurrent views cannot
// push the counter past limit.
func (r *userRepository) ConsumeFreeView(ctx context.Context, id uuid.UUID, limit int) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND free_views_used < ?", id, limit).
		UpdateColumn("free_views_used", gorm.Expr("free_views_used + 1"))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return repository.ErrLimitReached
}
