package usecase

import (
	"context"
	"time"

	"RecessionLens/internal/domain/errs"
	applogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/queue"

	"github.com/robfig/cron/v3"
)

// TrainCron enqueues a retraining run on a cron schedule, typically
// "@monthly" so new indicator releases are picked up. Schedules run in UTC.
type TrainCron struct {
	c    *cron.Cron
	id   cron.EntryID
	spec string
	q    queue.Enqueuer
	l    *applogger.Logger
}

// NewTrainCron parses spec (standard five fields or a descriptor such as
// "@monthly" or "@every 6h").
func NewTrainCron(spec string, q queue.Enqueuer) (*TrainCron, error) {
	t := &TrainCron{
		c:    cron.New(cron.WithLocation(time.UTC)),
		spec: spec,
		q:    q,
		l:    applogger.Nop(),
	}
	id, err := t.c.AddFunc(spec, t.fire)
	if err != nil {
		return nil, errs.Config("schedule", "retrain schedule %q: %v", spec, err)
	}
	t.id = id
	return t, nil
}

func (t *TrainCron) SetLogger(l *applogger.Logger) {
	if l != nil {
		t.l = l
	}
}

func (t *TrainCron) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := t.q.Enqueue(ctx, TrainJobType, TrainPayload{Reason: "schedule"})
	if err != nil {
		t.l.Error("scheduled retrain not enqueued", applogger.String("schedule", t.spec), applogger.Error(err))
		return
	}
	t.l.Info("scheduled retrain enqueued", applogger.String("job_id", id), applogger.String("next", t.Next().Format(time.RFC3339)))
}

// Next is the next activation time; zero before Start.
func (t *TrainCron) Next() time.Time {
	return t.c.Entry(t.id).Next
}

func (t *TrainCron) Start() error {
	t.c.Start()
	t.l.Info("retrain schedule started",
		applogger.String("schedule", t.spec),
		applogger.String("next", t.Next().Format(time.RFC3339)))
	return nil
}

// Stop stops scheduling and waits for a firing in progress.
func (t *TrainCron) Stop(ctx context.Context) error {
	done := t.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
