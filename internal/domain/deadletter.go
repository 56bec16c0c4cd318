package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeadLetter records a watermark job that will not be retried automatically.
type DeadLetter struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Job        WatermarkJob       `bson:"job" json:"job"`
	Reason     string             `bson:"reason" json:"reason"`
	Permanent  bool               `bson:"permanent" json:"permanent"` // false when retries were exhausted
	FailedAt   time.Time          `bson:"failedAt" json:"failedAt"`
	ReplayedAt *time.Time         `bson:"replayedAt,omitempty" json:"replayedAt,omitempty"`
	ReplayJob  string             `bson:"replayJobId,omitempty" json:"replayJobId,omitempty"`
}
