package mongo

import (
	"context"
	"errors"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const deadLetterCollectionName = "watermark_dead_letters"

// mongoDeadLetterRepository implements the repository.DeadLetterRepository interface using MongoDB.
type mongoDeadLetterRepository struct {
	collection *mongo.Collection
}

func NewMongoDeadLetterRepository(db *mongo.Database) repository.DeadLetterRepository {
	return &mongoDeadLetterRepository{
		collection: db.Collection(deadLetterCollectionName),
	}
}

func (r *mongoDeadLetterRepository) Save(ctx context.Context, dl *domain.DeadLetter) error {
	if dl.ID.IsZero() {
		dl.ID = primitive.NewObjectID()
	}
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, dl)
	return err
}

// List returns dead letters not yet replayed, newest first.
func (r *mongoDeadLetterRepository) List(ctx context.Context, limit int64) ([]domain.DeadLetter, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	filter := bson.M{"replayedAt": bson.M{"$exists": false}}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	letters := []domain.DeadLetter{}
	if err = cursor.All(ctx, &letters); err != nil {
		return nil, err
	}
	return letters, nil
}

func (r *mongoDeadLetterRepository) GetByID(ctx context.Context, id string) (*domain.DeadLetter, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	var dl domain.DeadLetter
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&dl); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &dl, nil
}

// ClaimReplay records the replay. Only the first claim wins.
func (r *mongoDeadLetterRepository) ClaimReplay(ctx context.Context, id string, at time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	filter := bson.M{"_id": objID, "replayedAt": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{"replayedAt": at.UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrUpdateFailed
	}
	return nil
}

func (r *mongoDeadLetterRepository) ReleaseReplay(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{"$unset": bson.M{"replayedAt": "", "replayJobId": ""}})
}

func (r *mongoDeadLetterRepository) SetReplayJobID(ctx context.Context, id string, replayJobID string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"replayJobId": replayJobID}})
}

func (r *mongoDeadLetterRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func EnsureDeadLetterIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "failedAt", Value: -1}},
	})
	return err
}
