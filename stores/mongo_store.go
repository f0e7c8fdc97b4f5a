package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Desarso/shopbot/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// checkpointDocument is the MongoDB shape of a Checkpoint.
type checkpointDocument struct {
	ThreadID     string                 `bson:"thread_id"`
	CheckpointID string                 `bson:"checkpoint_id"`
	Version      int64                  `bson:"version"`
	Messages     []models.Message       `bson:"messages"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty"`
	UpdatedAt    time.Time              `bson:"updated_at"`
}

func toDocument(cp *Checkpoint) checkpointDocument {
	return checkpointDocument{
		ThreadID:     cp.ThreadID,
		CheckpointID: cp.CheckpointID,
		Version:      cp.Version,
		Messages:     nonNilMessages(cp.Messages),
		Metadata:     cp.Metadata,
		UpdatedAt:    cp.UpdatedAt,
	}
}

func (d checkpointDocument) toCheckpoint() Checkpoint {
	return Checkpoint{
		ThreadID:     d.ThreadID,
		CheckpointID: d.CheckpointID,
		Version:      d.Version,
		Messages:     d.Messages,
		Metadata:     d.Metadata,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoStore persists checkpoints in a MongoDB collection with a unique
// (thread_id, checkpoint_id) index.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo store requires a connection URI")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "checkpoint_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create checkpoint index: %w", err)
	}

	return &MongoStore{client: client, collection: coll}, nil
}

func (s *MongoStore) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	threadID, checkpointID = normalizeKey(threadID, checkpointID)

	var doc checkpointDocument
	err := s.collection.FindOne(ctx, bson.M{"thread_id": threadID, "checkpoint_id": checkpointID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s/%s: %w", threadID, checkpointID, err)
	}
	cp := doc.toCheckpoint()
	return &cp, nil
}

func (s *MongoStore) Put(ctx context.Context, cp *Checkpoint) error {
	cp.ThreadID, cp.CheckpointID = normalizeKey(cp.ThreadID, cp.CheckpointID)
	now := time.Now().UTC()

	doc := toDocument(cp)
	doc.Version = cp.Version + 1
	doc.UpdatedAt = now

	if cp.Version == 0 {
		if _, err := s.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert checkpoint %s/%s: %w", cp.ThreadID, cp.CheckpointID, err)
		}
	} else {
		filter := bson.M{"thread_id": cp.ThreadID, "checkpoint_id": cp.CheckpointID, "version": cp.Version}
		res, err := s.collection.ReplaceOne(ctx, filter, doc)
		if err != nil {
			return fmt.Errorf("failed to update checkpoint %s/%s: %w", cp.ThreadID, cp.CheckpointID, err)
		}
		if res.MatchedCount == 0 {
			return ErrVersionConflict
		}
	}

	cp.Version++
	cp.UpdatedAt = now
	return nil
}

func (s *MongoStore) List(ctx context.Context, threadID string) ([]Checkpoint, error) {
	filter := bson.M{}
	if threadID != "" {
		filter["thread_id"] = threadID
	}
	opts := options.Find().SetSort(bson.D{{Key: "thread_id", Value: 1}, {Key: "checkpoint_id", Value: 1}})

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var docs []checkpointDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}

	out := make([]Checkpoint, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCheckpoint())
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
