package repository

import (
	"context"
	"errors"
	"time"

	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/services/artifact"
)

// IndicatorSource loads the monthly indicator history in date order.
type IndicatorSource interface {
	Load(ctx context.Context) ([]models.IndicatorRecord, error)
}

// IndicatorStore is a source that also accepts new history.
type IndicatorStore interface {
	IndicatorSource
	Init(ctx context.Context) error
	Upsert(ctx context.Context, records []models.IndicatorRecord) error
	Close() error
}

// ErrNotFound is returned by stores when the requested item does not exist.
var ErrNotFound = errors.New("not found")

// ArtifactStore persists trained bundles. Latest returns the most recently
// saved bundle.
type ArtifactStore interface {
	Save(ctx context.Context, b *artifact.Bundle) error
	Latest(ctx context.Context) (*artifact.Bundle, error)
	Get(ctx context.Context, id string) (*artifact.Bundle, error)
	Close() error
}

// PredictionPublisher emits predictions to downstream consumers.
type PredictionPublisher interface {
	Publish(ctx context.Context, p *models.PredictionRecord) error
	PublishBatch(ctx context.Context, ps []*models.PredictionRecord) error
	Close() error
}

// PredictionStore keeps prediction history.
type PredictionStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, p *models.PredictionRecord) error
	StoreBatch(ctx context.Context, ps []*models.PredictionRecord) error
	Recent(ctx context.Context, from, to time.Time, limit int) ([]*models.PredictionRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// PredictionSink forwards new predictions to wherever they are kept.
type PredictionSink interface {
	Process(ctx context.Context, p *models.PredictionRecord) error
	ProcessBatch(ctx context.Context, ps []*models.PredictionRecord) error
	Close() error
}

type Metrics interface {
	RecordPrediction(label bool, probability float64)
	RecordError(kind string)
	RecordTrainLoss(split string, loss float64)
	RecordEpoch()
	RecordLatency(op string, seconds float64)
}
