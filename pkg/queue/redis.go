package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"RecessionLens/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a job queue on Redis lists, shared by every process using the
// same key prefix. A worker moves a message atomically from the pending list
// to the processing list and removes it once handled, so a crash leaves it in
// the processing list; Start moves such leftovers back. Failed jobs wait in a
// sorted set scored by due time and end in the dead-letter list after
// RetryLimit retries.
type RedisQueue struct {
	l      *logger.Logger
	cfg    QueueConfig
	client *redis.Client
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the prefix of the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// envelope is the stored form of a message.
type envelope struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Attempts int             `json:"attempts"`
	Enqueued time.Time       `json:"enqueued"`
}

// NewRedisQueue creates a queue on client. Jobs are added with RegisterJob.
func NewRedisQueue(l *logger.Logger, cfg *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if l == nil {
		l = logger.Nop()
	}
	r := &RedisQueue{
		l:      l,
		cfg:    normalize(cfg),
		client: client,
		prefix: "recession:queue",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob routes messages of job.Type() to job. Later registrations for
// the same type are ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.l.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start checks the connection, requeues orphaned messages and launches the
// workers and the retry scheduler.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	n, err := r.requeueOrphans(ctx)
	if err != nil {
		return fmt.Errorf("recover processing list: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.wg.Add(1)
	go r.scheduler()

	r.l.Info("redis queue started",
		logger.String("prefix", r.prefix),
		logger.Int("workers", r.cfg.Workers),
		logger.Int64("requeued", n),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers. A job cancelled
// mid-run stays in the processing list and is requeued by the next Start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}

// Enqueue stores a message for the job registered under msgType and returns
// its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return "", ErrNotRunning
	}
	if !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	env, err := newEnvelope(msgType, payload)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("pending"), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return env.ID, nil
}

func newEnvelope(msgType string, payload interface{}) (envelope, error) {
	env := envelope{ID: uuid.NewString(), Type: msgType, Enqueued: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return env, fmt.Errorf("marshal payload: %w", err)
		}
		env.Payload = raw
	}
	return env, nil
}

func (r *RedisQueue) worker() {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.key("pending"), r.key("processing"), "RIGHT", "LEFT", time.Second).Result()
		switch {
		case err == nil:
			r.process(raw)
		case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
		default:
			r.l.Error("queue fetch", logger.Error(err))
			r.pause(time.Second)
		}
	}
}

func (r *RedisQueue) process(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.l.Error("queue: undecodable message moved to dlq", logger.Error(err))
		r.settle(raw, "dlq", raw, 0)
		return
	}
	r.mu.RLock()
	job, ok := r.jobs[env.Type]
	r.mu.RUnlock()
	if !ok {
		r.l.Error("no job found", logger.String("type", env.Type), logger.String("id", env.ID))
		r.settle(raw, "dlq", raw, 0)
		return
	}

	var payload interface{}
	if len(env.Payload) > 0 {
		payload = env.Payload
	}
	start := time.Now()
	err := job.Handle(WithMessageID(r.ctx, env.ID), payload)
	switch {
	case err == nil:
		r.settle(raw, "", "", 0)
	case r.ctx.Err() != nil:
		r.l.Warn("message cancelled",
			logger.String("id", env.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)))
	default:
		env.Attempts++
		r.l.Error("message processing error",
			logger.String("id", env.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", env.Attempts),
			logger.Error(err))
		next, _ := json.Marshal(env)
		if env.Attempts > r.cfg.RetryLimit {
			r.l.Error("max retries reached", logger.String("id", env.ID), logger.String("job", job.Name()))
			r.settle(raw, "dlq", string(next), 0)
			return
		}
		due := time.Now().Add(r.cfg.RetryDelay)
		r.settle(raw, "retry", string(next), due.UnixMilli())
	}
}

// settle removes raw from the processing list and, in the same transaction,
// files next under dest: "dlq", "retry" (scored by due) or nowhere.
func (r *RedisQueue) settle(raw, dest, next string, due int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, r.key("processing"), 1, raw)
	switch dest {
	case "dlq":
		pipe.LPush(ctx, r.key("dlq"), next)
	case "retry":
		pipe.ZAdd(ctx, r.key("retry"), redis.Z{Score: float64(due), Member: next})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Error("queue settle", logger.String("dest", dest), logger.Error(err))
	}
}

// scheduler moves due retries back to the pending list.
func (r *RedisQueue) scheduler() {
	defer r.wg.Done()
	tick := r.cfg.RetryDelay / 2
	if tick < 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	if tick > 5*time.Second {
		tick = 5 * time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			if err := r.promote(r.ctx, time.Now()); err != nil && r.ctx.Err() == nil {
				r.l.Error("queue retry promote", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) promote(ctx context.Context, now time.Time) error {
	due, err := r.client.ZRangeByScore(ctx, r.key("retry"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		// ZRem decides which process owns the member
		removed, err := r.client.ZRem(ctx, r.key("retry"), member).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := r.client.LPush(ctx, r.key("pending"), member).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RedisQueue) requeueOrphans(ctx context.Context) (int64, error) {
	var n int64
	for {
		err := r.client.LMove(ctx, r.key("processing"), r.key("pending"), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (r *RedisQueue) pause(d time.Duration) {
	select {
	case <-r.ctx.Done():
	case <-time.After(d):
	}
}

func (r *RedisQueue) key(name string) string {
	return r.prefix + ":" + name
}
