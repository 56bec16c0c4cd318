package domain

import (
	"time"

	"github.com/google/uuid"
)

// Favorite links a user to a document they want update notifications for.
type Favorite struct {
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
	DocumentID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"documentId"`
	CreatedAt  time.Time `json:"createdAt"`
}
