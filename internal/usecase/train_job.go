package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/domain/service"
	"RecessionLens/internal/services/features"
	"RecessionLens/pkg/cache"
	applogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/queue"
)

// TrainJobType is the queue message type of a retraining run.
const TrainJobType = "train"

const trainLockKey = "lock:train"

// TrainPayload is the queued retraining request.
type TrainPayload struct {
	Reason string `json:"reason"`
}

// TrainJob retrains from the indicator source and activates the new model.
// Runs never overlap: in-process through a mutex, across instances through
// the cache lock when one is set.
type TrainJob struct {
	source   domrepo.IndicatorSource
	trainer  *Trainer
	registry *ModelRegistry
	lock     cache.Service
	lockTTL  time.Duration
	mu       sync.Mutex
	l        *applogger.Logger
}

func NewTrainJob(source domrepo.IndicatorSource, trainer *Trainer, registry *ModelRegistry) *TrainJob {
	return &TrainJob{source: source, trainer: trainer, registry: registry}
}

// SetLogger injects a structured logger.
func (j *TrainJob) SetLogger(l *applogger.Logger) { j.l = l }

// SetLock guards runs with a distributed lock held for at most ttl.
func (j *TrainJob) SetLock(c cache.Service, ttl time.Duration) {
	j.lock = c
	j.lockTTL = ttl
}

func (j *TrainJob) Name() string { return "recession-train" }
func (j *TrainJob) Type() string { return TrainJobType }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[TrainPayload](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.lock != nil {
		ok, err := j.lock.TryLock(ctx, trainLockKey, j.lockTTL)
		if err != nil {
			return fmt.Errorf("train lock: %w", err)
		}
		if !ok {
			if j.l != nil {
				j.l.Warn("training already running elsewhere; skipped", applogger.String("job_id", queue.MessageID(ctx)))
			}
			return nil
		}
		defer j.lock.Unlock(context.Background(), trainLockKey)
	}

	if j.l != nil {
		j.l.Info("training job started",
			applogger.String("job_id", queue.MessageID(ctx)),
			applogger.String("reason", p.Reason),
		)
	}
	return j.Run(ctx)
}

// Run loads, labels and trains, then activates the resulting model.
func (j *TrainJob) Run(ctx context.Context) error {
	records, err := j.source.Load(ctx)
	if err != nil {
		return err
	}
	series, err := features.Label(records)
	if err != nil {
		return err
	}
	bundle, err := j.trainer.Train(ctx, series)
	if err != nil {
		return err
	}
	if j.registry == nil {
		return nil
	}
	pred, err := NewPredictor(bundle)
	if err != nil {
		return err
	}
	j.registry.Set(pred)
	return nil
}

var _ queue.Job = (*TrainJob)(nil)

// QueueTrainScheduler schedules retraining through a job queue.
type QueueTrainScheduler struct {
	q queue.Enqueuer
}

func NewQueueTrainScheduler(q queue.Enqueuer) *QueueTrainScheduler {
	return &QueueTrainScheduler{q: q}
}

func (s *QueueTrainScheduler) ScheduleTrain(ctx context.Context) (string, error) {
	return s.q.Enqueue(ctx, TrainJobType, TrainPayload{Reason: "api"})
}

var _ service.TrainScheduler = (*QueueTrainScheduler)(nil)
