package repository

import (
	"context"
	"time"

	"alcyxob/notes-app/internal/domain"

	"github.com/google/uuid"
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrDuplicate     = RepositoryError("duplicate key")
	ErrUpdateFailed  = RepositoryError("update failed")
	ErrDeleteFailed  = RepositoryError("delete failed")
	ErrLimitReached  = RepositoryError("limit reached")
	ErrAlreadyExists = ErrDuplicate
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// Store is the relational unit of work. Repositories obtained from the tx
// passed to WithinTransaction share one transaction.
type Store interface {
	Users() UserRepository
	Documents() DocumentRepository
	Versions() VersionRepository
	Favorites() FavoriteRepository
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// ConsumeFreeView increments the user's free view count if it is below limit.
	// Returns ErrLimitReached otherwise.
	ConsumeFreeView(ctx context.Context, id uuid.UUID, limit int) error
}

// DocumentRepository defines the interface for interacting with documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	// GetForUpdate reads the row under an exclusive lock held until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByStatus(ctx context.Context, status domain.ApprovalStatus) ([]domain.Document, error)
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
}

// VersionRepository defines the interface for interacting with document versions.
type VersionRepository interface {
	Create(ctx context.Context, v *domain.DocumentVersion) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DocumentVersion, error)
	GetCurrentLive(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error)
	// GetLatestPending returns the most recently uploaded pending version.
	GetLatestPending(ctx context.Context, documentID uuid.UUID) (*domain.DocumentVersion, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentVersion, error)
	// ClearCurrentLive unsets the live flag on every version of the document except exceptID.
	ClearCurrentLive(ctx context.Context, documentID, exceptID uuid.UUID) error
	Update(ctx context.Context, v *domain.DocumentVersion) error
	// TransitionStampState moves a version that is not live from one stamp
	// state to another. ErrUpdateFailed means it was live or not in from.
	TransitionStampState(ctx context.Context, id uuid.UUID, from, to domain.StampState) error
	// PublishStampedFile points a pending version that is not live at its
	// stamped file and marks it stamped. ErrUpdateFailed otherwise.
	PublishStampedFile(ctx context.Context, id uuid.UUID, file domain.FileRef) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// FavoriteRepository defines the interface for favorites.
type FavoriteRepository interface {
	Add(ctx context.Context, userID, documentID uuid.UUID) error
	Remove(ctx context.Context, userID, documentID uuid.UUID) error
	ListUserIDsByDocument(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// ViewLogRepository stores per (viewer, document) analytics.
type ViewLogRepository interface {
	Record(ctx context.Context, viewerID, documentID uuid.UUID, at time.Time) error
	Get(ctx context.Context, viewerID, documentID uuid.UUID) (*domain.ViewRecord, error)
}

// NotificationRepository defines the interface for the notification inbox.
type NotificationRepository interface {
	CreateMany(ctx context.Context, notifications []domain.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int64) ([]domain.Notification, error)
}

// DeadLetterRepository keeps watermark jobs that will not be retried automatically.
type DeadLetterRepository interface {
	Save(ctx context.Context, dl *domain.DeadLetter) error
	List(ctx context.Context, limit int64) ([]domain.DeadLetter, error)
	GetByID(ctx context.Context, id string) (*domain.DeadLetter, error)
	// ClaimReplay marks the entry replayed. Only the first claim wins; later
	// ones get ErrUpdateFailed.
	ClaimReplay(ctx context.Context, id string, at time.Time) error
	// ReleaseReplay undoes a claim whose job never got enqueued.
	ReleaseReplay(ctx context.Context, id string) error
	SetReplayJobID(ctx context.Context, id string, replayJobID string) error
}
