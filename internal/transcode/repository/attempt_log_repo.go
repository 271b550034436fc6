package repository

import (
	"context"
	"sync"

	"hls_transcode_service/internal/transcode/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AttemptCollection mongo collection name
const AttemptCollection = "transcode_attempts"

// AttemptLogRepo 每次執行的紀錄
type AttemptLogRepo interface {
	Record(ctx context.Context, rec domain.AttemptRecord) error
	ListByJob(ctx context.Context, jobID string) ([]domain.AttemptRecord, error)
}

type attemptLogRepo struct {
	collection *mongo.Collection
}

// NewAttemptLogRepo create mongo AttemptLogRepo
func NewAttemptLogRepo(db *mongo.Database) AttemptLogRepo {
	return &attemptLogRepo{collection: db.Collection(AttemptCollection)}
}

// EnsureAttemptIndexes job_id + attempt index
func EnsureAttemptIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(AttemptCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "attempt", Value: 1}},
	})
	return err
}

func (r *attemptLogRepo) Record(ctx context.Context, rec domain.AttemptRecord) error {
	_, err := r.collection.InsertOne(ctx, rec)
	return err
}

func (r *attemptLogRepo) ListByJob(ctx context.Context, jobID string) ([]domain.AttemptRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "attempt", Value: 1}, {Key: "started_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []domain.AttemptRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// memoryAttemptLog 沒有 mongo 時使用
type memoryAttemptLog struct {
	mu      sync.Mutex
	records []domain.AttemptRecord
}

// NewMemoryAttemptLog in-memory AttemptLogRepo
func NewMemoryAttemptLog() AttemptLogRepo {
	return &memoryAttemptLog{}
}

func (m *memoryAttemptLog) Record(_ context.Context, rec domain.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryAttemptLog) ListByJob(_ context.Context, jobID string) ([]domain.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := []domain.AttemptRecord{}
	for _, rec := range m.records {
		if rec.JobID == jobID {
			records = append(records, rec)
		}
	}
	return records, nil
}
