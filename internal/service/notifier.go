package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const notifyTimeout = 10 * time.Second

// Notifier tells favoriters that a document went live or changed.
// Delivery is fire-and-forget: callers never see its errors.
type Notifier interface {
	DocumentPublished(doc *domain.Document, kind domain.NotificationKind)
}

// FavoriteNotifier writes one inbox entry per favoriter in the background.
type FavoriteNotifier struct {
	favorites repository.FavoriteRepository
	inbox     repository.NotificationRepository
	log       logrus.FieldLogger
	wg        sync.WaitGroup
}

func NewFavoriteNotifier(favorites repository.FavoriteRepository, inbox repository.NotificationRepository, log logrus.FieldLogger) *FavoriteNotifier {
	return &FavoriteNotifier{favorites: favorites, inbox: inbox, log: log}
}

func (n *FavoriteNotifier) DocumentPublished(doc *domain.Document, kind domain.NotificationKind) {
	if n.inbox == nil {
		return
	}
	docID, title, owner := doc.ID, doc.Title, doc.OwnerID

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		log := n.log.WithFields(logrus.Fields{"documentId": docID, "kind": kind})
		if err := n.fanOut(ctx, docID, owner, title, kind); err != nil {
			log.WithError(err).Error("notification fan-out failed")
			return
		}
		log.Debug("favoriters notified")
	}()
}

func (n *FavoriteNotifier) fanOut(ctx context.Context, docID, owner uuid.UUID, title string, kind domain.NotificationKind) error {
	userIDs, err := n.favorites.ListUserIDsByDocument(ctx, docID)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("%q is now available", title)
	if kind == domain.NotificationNewVersion {
		message = fmt.Sprintf("%q has a new version", title)
	}
	now := time.Now().UTC()

	notifications := make([]domain.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if id == owner {
			continue
		}
		notifications = append(notifications, domain.Notification{
			UserID:     id.String(),
			DocumentID: docID.String(),
			Kind:       kind,
			Message:    message,
			CreatedAt:  now,
		})
	}
	return n.inbox.CreateMany(ctx, notifications)
}

// Wait blocks until in-flight fan-outs finish. Used on shutdown and in tests.
func (n *FavoriteNotifier) Wait() {
	n.wg.Wait()
}
