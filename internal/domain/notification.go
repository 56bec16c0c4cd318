package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationKind string

const (
	NotificationNewDocument NotificationKind = "new"
	NotificationNewVersion  NotificationKind = "update"
)

// Notification is one inbox entry for a user who favorited a document.
type Notification struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"userId" json:"userId"`
	DocumentID string             `bson:"documentId" json:"documentId"`
	Kind       NotificationKind   `bson:"kind" json:"kind"`
	Message    string             `bson:"message" json:"message"`
	Read       bool               `bson:"read" json:"read"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
