package service

import (
	"context"
	"errors"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"
)

// AccessPolicy decides whether a viewer may open a document.
type AccessPolicy struct {
	users repository.UserRepository
	cfg   config.AccessConfig
	now   func() time.Time
}

func NewAccessPolicy(users repository.UserRepository, cfg config.AccessConfig) *AccessPolicy {
	return &AccessPolicy{users: users, cfg: cfg, now: time.Now}
}

// Check lets owners, admins, free documents and subscribers through. Anyone
// else spends one of their free views, if any are left.
func (p *AccessPolicy) Check(ctx context.Context, viewer domain.Identity, doc *domain.Document) error {
	if viewer.IsOwnerOrElevated(doc.OwnerID) || doc.IsFree || !p.cfg.SubscriptionEnabled {
		return nil
	}

	user, err := p.users.GetByID(ctx, viewer.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccessDenied
		}
		return err
	}
	if user.HasActiveSubscription(p.now()) {
		return nil
	}

	switch err := p.users.ConsumeFreeView(ctx, user.ID, p.cfg.FreeViewLimit); {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrLimitReached), errors.Is(err, repository.ErrNotFound):
		return ErrAccessDenied
	default:
		return err
	}
}
