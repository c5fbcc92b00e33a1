package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	applogger "RecessionLens/pkg/logger"
)

// SinkBuffer sits between the prediction service and the sink. It validates
// predictions, forwards them, and buffers them while downstream is
// unavailable. Buffered predictions are retried in batches with backoff.
type SinkBuffer struct {
	sink       domrepo.PredictionSink
	metrics    domrepo.Metrics
	l          *applogger.Logger
	bufSize    int
	batchSize  int
	backoffMin time.Duration
	backoffMax time.Duration
	bufCh      chan *models.PredictionRecord
	stopCh     chan struct{}
	done       chan struct{}
	started    bool
	mu         sync.Mutex
}

type BufferOption func(*SinkBuffer)

// WithBufferSize sets how many predictions are kept while downstream is unavailable.
func WithBufferSize(n int) BufferOption {
	return func(b *SinkBuffer) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithBatchSize sets the largest batch retried at once.
func WithBatchSize(n int) BufferOption {
	return func(b *SinkBuffer) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(min, max time.Duration) BufferOption {
	return func(b *SinkBuffer) {
		if min > 0 && max >= min {
			b.backoffMin, b.backoffMax = min, max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) BufferOption {
	return func(b *SinkBuffer) { b.l = l }
}

// NewSinkBuffer creates a buffer in front of sink.
func NewSinkBuffer(sink domrepo.PredictionSink, metrics domrepo.Metrics, opts ...BufferOption) *SinkBuffer {
	b := &SinkBuffer{
		sink:       sink,
		metrics:    metrics,
		l:          applogger.Nop(),
		bufSize:    1000,
		batchSize:  100,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.bufCh = make(chan *models.PredictionRecord, b.bufSize)
	return b
}

var _ domrepo.PredictionSink = (*SinkBuffer)(nil)

// Start launches background flushing of buffered predictions.
func (b *SinkBuffer) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("sink buffer already running")
	}
	b.started = true
	b.stopCh = make(chan struct{})
	b.done = make(chan struct{})
	go b.flushLoop(b.stopCh, b.done)
	return nil
}

// Stop ends background flushing and makes one last attempt to deliver what
// is still buffered.
func (b *SinkBuffer) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	close(b.stopCh)
	done := b.done
	b.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}

	for {
		batch := b.drain(nil)
		if len(batch) == 0 {
			return nil
		}
		if err := b.sink.ProcessBatch(ctx, batch); err != nil {
			b.metrics.RecordError("sink_buffer_drop")
			b.l.Warn("sink buffer: dropping predictions on shutdown",
				applogger.Int("count", len(batch)+len(b.bufCh)), applogger.Error(err))
			return err
		}
	}
}

// Close closes the downstream sink.
func (b *SinkBuffer) Close() error { return b.sink.Close() }

// Pending reports how many predictions wait for redelivery.
func (b *SinkBuffer) Pending() int { return len(b.bufCh) }

// Process validates r and forwards it, buffering it on downstream errors.
func (b *SinkBuffer) Process(ctx context.Context, r *models.PredictionRecord) error {
	start := time.Now()
	if err := validatePrediction(r); err != nil {
		b.metrics.RecordError("sink_buffer_validate")
		return err
	}
	if err := b.sink.Process(ctx, r); err != nil {
		b.buffer(r)
		return fmt.Errorf("sink buffer downstream: %w", err)
	}
	b.metrics.RecordLatency("sink_buffer_process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch validates and forwards rs in one call, buffering them all on
// downstream errors.
func (b *SinkBuffer) ProcessBatch(ctx context.Context, rs []*models.PredictionRecord) error {
	for _, r := range rs {
		if err := validatePrediction(r); err != nil {
			b.metrics.RecordError("sink_buffer_validate")
			return err
		}
	}
	if err := b.sink.ProcessBatch(ctx, rs); err != nil {
		for _, r := range rs {
			b.buffer(r)
		}
		return fmt.Errorf("sink buffer downstream: %w", err)
	}
	return nil
}

func (b *SinkBuffer) buffer(r *models.PredictionRecord) {
	select {
	case b.bufCh <- r:
		b.metrics.RecordLatency("sink_buffer_depth", float64(len(b.bufCh)))
	default:
		b.metrics.RecordError("sink_buffer_full")
	}
}

// drain takes up to batchSize buffered predictions without blocking.
func (b *SinkBuffer) drain(batch []*models.PredictionRecord) []*models.PredictionRecord {
	for len(batch) < b.batchSize {
		select {
		case r := <-b.bufCh:
			batch = append(batch, r)
		default:
			return batch
		}
	}
	return batch
}

func (b *SinkBuffer) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	backoff := b.backoffMin
	for {
		select {
		case <-stop:
			return
		case r := <-b.bufCh:
			batch := b.drain([]*models.PredictionRecord{r})
			if err := b.sink.ProcessBatch(ctx, batch); err != nil {
				b.metrics.RecordError("sink_buffer_flush")
				b.l.Warn("sink buffer: redelivery failed",
					applogger.Int("count", len(batch)), applogger.Duration("backoff", backoff), applogger.Error(err))
				// requeue if space; drop otherwise
				for _, r := range batch {
					b.buffer(r)
				}
				select {
				case <-stop:
					return
				case <-time.After(backoff):
				}
				// exponential backoff with cap
				if backoff *= 2; backoff > b.backoffMax {
					backoff = b.backoffMax
				}
				continue
			}
			backoff = b.backoffMin
		}
	}
}

func validatePrediction(r *models.PredictionRecord) error {
	if r == nil {
		return fmt.Errorf("prediction nil")
	}
	if r.ID == "" {
		return fmt.Errorf("prediction id empty")
	}
	if r.ArtifactID == "" {
		return fmt.Errorf("prediction %s has no artifact id", r.ID)
	}
	if math.IsNaN(r.Probability) || r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("prediction %s probability %v outside [0,1]", r.ID, r.Probability)
	}
	return nil
}
