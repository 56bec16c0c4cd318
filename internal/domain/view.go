package domain

import "time"

// ViewRecord is the analytics entry for one (viewer, document) pair.
type ViewRecord struct {
	ViewerID      string    `bson:"viewerId" json:"viewerId"`
	DocumentID    string    `bson:"documentId" json:"documentId"`
	Views         int64     `bson:"views" json:"views"`
	FirstViewedAt time.Time `bson:"firstViewedAt" json:"firstViewedAt"`
	LastViewedAt  time.Time `bson:"lastViewedAt" json:"lastViewedAt"`
}
