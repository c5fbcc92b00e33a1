package kafka

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "RecessionLens/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const commitAttempts = 3

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type delivery struct {
	reader  committer
	handler MessageHandler
	msg     kafka.Message
}

// Consumer reads every registered topic in one consumer group. Fetched
// messages are sharded over the workers by partition, so a partition is
// always handled in order by the same worker. An offset is committed once
// its message is handled or parked on the dead-letter topic; anything else
// is redelivered after a restart.
type Consumer struct {
	cfg      ConsumerConfig
	handlers map[string]MessageHandler
	hook     ConsumerHook
	l        *applogger.Logger
	dlq      *kafka.Writer

	readers []*kafka.Reader
	shards  []chan delivery
	quit    chan struct{}
	readWG  sync.WaitGroup
	workWG  sync.WaitGroup
	stop    sync.Once
}

// NewConsumer creates a consumer. Readers are created by Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	registerMetrics()

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		l:        applogger.Nop(),
		quit:     make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	return c, nil
}

// SetLogger injects a structured logger.
func (c *Consumer) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.l = l
	}
}

// WithConsumerHook sets the hook run around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler routes the messages of h.Topic() to h. A second handler
// for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.l.Warn("kafka consumer: handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start launches the workers and one reader per registered topic.
func (c *Consumer) Start() error {
	c.shards = make([]chan delivery, c.cfg.WorkerCount)
	for i := range c.shards {
		c.shards[i] = make(chan delivery, c.cfg.BufferSize)
		c.workWG.Add(1)
		go c.work(c.shards[i])
	}
	for topic, h := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     c.cfg.GroupID,
			Topic:       topic,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: kafka.FirstOffset,
		})
		c.readers = append(c.readers, r)
		c.readWG.Add(1)
		go c.read(r, h)
	}
	c.l.Info("kafka consumer: started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", len(c.shards)),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop stops fetching, lets the workers finish what was fetched and closes
// the readers. ctx bounds the wait.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stop.Do(func() {
		close(c.quit)
		if err = waitFor(ctx, &c.readWG); err == nil {
			for _, s := range c.shards {
				close(s)
			}
			err = waitFor(ctx, &c.workWG)
		}
		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Error("kafka consumer: close reader", applogger.String("topic", r.Config().Topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Error("kafka consumer: close dlq writer", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.l.Info("kafka consumer: stopped")
		}
	})
	return err
}

func (c *Consumer) read(r *kafka.Reader, h MessageHandler) {
	defer c.readWG.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.l.Error("kafka consumer: fetch", applogger.String("topic", h.Topic()), applogger.Error(err))
			if !c.sleep(c.cfg.BackoffMin) {
				return
			}
			continue
		}
		shard := c.shards[msg.Partition%len(c.shards)]
		select {
		case shard <- delivery{reader: r, handler: h, msg: msg}:
			queueDepth.WithLabelValues(msg.Topic).Set(float64(len(shard)))
		case <-c.quit:
			return
		}
	}
}

func (c *Consumer) work(in <-chan delivery) {
	defer c.workWG.Done()
	for d := range in {
		c.process(d)
	}
}

func (c *Consumer) process(d delivery) {
	start := time.Now()
	topic := d.msg.Topic
	attempts, err := c.handle(d)

	outcome := "ok"
	if err != nil {
		if c.closing() {
			// left uncommitted for the next run
			return
		}
		outcome = "failed"
		c.l.Error("kafka consumer: handle failed",
			applogger.String("topic", topic),
			applogger.Int("partition", d.msg.Partition),
			applogger.Int64("offset", d.msg.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if c.dlq != nil {
			if perr := c.park(d.msg, err); perr != nil {
				c.l.Error("kafka consumer: dlq write", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(perr))
			} else {
				outcome = "dlq"
			}
		}
	}
	if outcome != "failed" {
		c.commit(d)
	}
	handledTotal.WithLabelValues(topic, outcome).Inc()
	handleSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

// handle runs the handler up to RetryMax+1 times with jittered backoff.
func (c *Consumer) handle(d delivery) (int, error) {
	for attempt := 1; ; attempt++ {
		err := c.attempt(d)
		if err == nil || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		c.hook.OnError(context.Background(), d.msg.Topic, d.msg, d.msg.Value, err)
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, err
		}
	}
}

func (c *Consumer) attempt(d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, msg, data, err := c.hook.BeforeHandle(context.Background(), d.msg.Topic, d.msg, d.msg.Value)
	if err != nil {
		return err
	}
	err = d.handler.Handle(ctx, data)
	c.hook.AfterHandle(ctx, d.msg.Topic, msg, data, err)
	return err
}

// park copies msg to the dead-letter topic with its origin and the error.
func (c *Consumer) park(msg kafka.Message, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append(append([]kafka.Header(nil), msg.Headers...),
		kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	return c.dlq.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers})
}

func (c *Consumer) commit(d delivery) {
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = d.reader.CommitMessages(ctx, d.msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka consumer: commit",
		applogger.String("topic", d.msg.Topic),
		applogger.Int64("offset", d.msg.Offset),
		applogger.Error(err),
	)
}

func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.quit:
		return false
	}
}

func (c *Consumer) closing() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

func waitFor(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer: stop: %w", ctx.Err())
	}
}

// backoffWithJitter doubles min per attempt up to max and takes off up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}
