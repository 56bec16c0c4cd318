package postgres

import (
	"context"
	"errors"

	"alcyxob/notes-app/internal/repository"

	"gorm.io/gorm"
)

// Store hands out repositories bound to one *gorm.DB, which is either the
// pool or an open transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() repository.UserRepository { return &userRepository{db: s.db} }
func (s *Store) Documents() repository.DocumentRepository { return &documentRepository{db: s.db} }
func (s *Store) Versions() repository.VersionRepository { return &versionRepository{db: s.db} }
func (s *Store) Favorites() repository.FavoriteRepository { return &favoriteRepository{db: s.db} }

// WithinTransaction runs fn in a transaction; any error rolls it back.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translate maps gorm errors onto the repository error set.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	}
	return err
}

// base carries the lookups every entity repository shares.
type base[T any] struct {
	db *gorm.DB
}

func (b base[T]) create(ctx context.Context, entity *T) error {
	return translate(b.db.WithContext(ctx).Create(entity).Error)
}

func (b base[T]) first(ctx context.Context, query string, args ...any) (*T, error) {
	var entity T
	if err := b.db.WithContext(ctx).Where(query, args...).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return &entity, nil
}

func (b base[T]) save(ctx context.Context, entity *T) error {
	return translate(b.db.WithContext(ctx).Save(entity).Error)
}
