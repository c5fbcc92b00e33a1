package usecase

import (
	"context"
	"fmt"
	"time"

	"RecessionLens/internal/domain/models"
	drepo "RecessionLens/internal/domain/repository"
)

// PredictionSink routes predictions to the configured backend.
type PredictionSink struct {
	pub     drepo.PredictionPublisher
	store   drepo.PredictionStore
	metrics drepo.Metrics
	backend drepo.SinkKind
}

// NewPredictionSink creates a sink writing to backend.
func NewPredictionSink(
	pub drepo.PredictionPublisher,
	store drepo.PredictionStore,
	metrics drepo.Metrics,
	backend drepo.SinkKind,
) *PredictionSink {
	return &PredictionSink{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

var _ drepo.PredictionSink = (*PredictionSink)(nil)

// Process sends a single prediction to the configured backend.
func (p *PredictionSink) Process(ctx context.Context, r *models.PredictionRecord) error {
	if r == nil {
		return fmt.Errorf("prediction is nil")
	}

	start := time.Now()
	var err error

	switch {
	case p.backend == drepo.SinkKafka && p.pub != nil:
		err = p.pub.Publish(ctx, r)
	case p.backend == drepo.SinkClickHouse && p.store != nil:
		err = p.store.Store(ctx, r)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("sink")
		return fmt.Errorf("sink prediction: %w", err)
	}

	p.metrics.RecordLatency("sink_"+string(p.backend), time.Since(start).Seconds())
	return nil
}

// ProcessBatch sends predictions in one call.
func (p *PredictionSink) ProcessBatch(ctx context.Context, rs []*models.PredictionRecord) error {
	if len(rs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch {
	case p.backend == drepo.SinkKafka && p.pub != nil:
		err = p.pub.PublishBatch(ctx, rs)
	case p.backend == drepo.SinkClickHouse && p.store != nil:
		err = p.store.StoreBatch(ctx, rs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("sink_batch")
		return fmt.Errorf("sink batch: %w", err)
	}

	p.metrics.RecordLatency("sink_batch_"+string(p.backend), time.Since(start).Seconds())
	return nil
}

// Close closes the backend this sink writes to.
func (p *PredictionSink) Close() error {
	switch p.backend {
	case drepo.SinkKafka:
		if p.pub != nil {
			return p.pub.Close()
		}
	case drepo.SinkClickHouse:
		if p.store != nil {
			return p.store.Close()
		}
	}
	return nil
}
