package repository

import (
	"context"
	"errors"

	"TradePilot/internal/domain/models"
)

// ErrJobNotFound is returned by JobStore.Get for unknown job ids.
var ErrJobNotFound = errors.New("training job not found")

// SampleStore archives market samples and serves training windows.
type SampleStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreBatch(ctx context.Context, samples []models.MarketSample) error
	LatestN(ctx context.Context, symbol string, n int) ([]models.MarketSample, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// TrainingLog records finished training runs for offline analysis.
type TrainingLog interface {
	Record(ctx context.Context, job *models.TrainingJob) error
}

// JobStore persists training job state through its lifecycle.
type JobStore interface {
	Save(ctx context.Context, job *models.TrainingJob) error
	Get(ctx context.Context, id string) (*models.TrainingJob, error)
	List(ctx context.Context, limit int) ([]models.TrainingJob, error)
}

// Metrics is implemented by the prometheus recorder.
type Metrics interface {
	RecordCycle(task string, seconds float64)
	RecordDecision(symbol, action string)
	RecordPrediction(modelType, source string)
	RecordCacheHit(hit bool)
	SetKillSwitchLevel(level int)
	RecordTrainingJob(status string)
	RecordOrder(op string, failed bool)
	RecordError(kind string)
}
