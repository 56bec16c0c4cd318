package mongo

import (
	"context"
	"errors"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const viewLogCollectionName = "view_logs"

// mongoViewLogRepository implements the repository.ViewLogRepository interface using MongoDB.
type mongoViewLogRepository struct {
	collection *mongo.Collection
}

func NewMongoViewLogRepository(db *mongo.Database) repository.ViewLogRepository {
	return &mongoViewLogRepository{
		collection: db.Collection(viewLogCollectionName),
	}
}

// Record upserts the (viewer, document) entry: the first view creates it,
// later views bump the counter and the last-viewed time.
func (r *mongoViewLogRepository) Record(ctx context.Context, viewerID, documentID uuid.UUID, at time.Time) error {
	filter := bson.M{"viewerId": viewerID.String(), "documentId": documentID.String()}
	update := bson.M{
		"$inc":         bson.M{"views": 1},
		"$set":         bson.M{"lastViewedAt": at.UTC()},
		"$setOnInsert": bson.M{"firstViewedAt": at.UTC()},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *mongoViewLogRepository) Get(ctx context.Context, viewerID, documentID uuid.UUID) (*domain.ViewRecord, error) {
	var rec domain.ViewRecord
	filter := bson.M{"viewerId": viewerID.String(), "documentId": documentID.String()}
	if err := r.collection.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// EnsureViewLogIndexes creates the unique (viewer, document) index the upsert relies on.
func EnsureViewLogIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "viewerId", Value: 1}, {Key: "documentId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "documentId", Value: 1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
