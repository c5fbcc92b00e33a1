package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	applogger "RecessionLens/pkg/logger"

	"github.com/segmentio/kafka-go"
)

func TestTraceHook(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("p-1")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "t", msg, nil)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if TraceIDFrom(ctx) != "p-1" {
		t.Fatalf("trace id = %q", TraceIDFrom(ctx))
	}
	if _, ok := ctx.Value(CtxStartTime).(time.Time); !ok {
		t.Fatalf("start time not set")
	}
}

func TestHookFuncsNilSafe(t *testing.T) {
	var h HookFuncs
	ctx, _, data, err := h.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	if err != nil || string(data) != "x" || ctx == nil {
		t.Fatalf("empty hook changed the message: %q %v", data, err)
	}
	h.AfterHandle(ctx, "t", kafka.Message{}, data, nil)
	h.OnError(ctx, "t", kafka.Message{}, data, errors.New("x"))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

type flakyHandler struct {
	fails int
	calls int
	trace []string
}

func (h *flakyHandler) Topic() string { return "predictions" }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.trace = append(h.trace, TraceIDFrom(ctx))
	if h.calls <= h.fails {
		return errors.New("store down")
	}
	return nil
}

type countingCommitter struct{ commits int }

func (c *countingCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	c.commits += len(msgs)
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	c.SetLogger(applogger.Nop())
	c.WithConsumerHook(TraceHook())
	return c
}

func TestProcessRetriesThenCommits(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{fails: 2}
	cm := &countingCommitter{}
	msg := kafka.Message{Topic: "predictions", Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("id-7")}}}

	c.process(delivery{reader: cm, handler: h, msg: msg})

	if h.calls != 3 {
		t.Fatalf("handler calls = %d, want 3", h.calls)
	}
	if cm.commits != 1 {
		t.Fatalf("commits = %d, want 1", cm.commits)
	}
	for _, id := range h.trace {
		if id != "id-7" {
			t.Fatalf("trace id not propagated: %v", h.trace)
		}
	}
}

func TestProcessLeavesFailedMessageUncommitted(t *testing.T) {
	c := newTestConsumer(t, 1)
	h := &flakyHandler{fails: 10}
	cm := &countingCommitter{}

	c.process(delivery{reader: cm, handler: h, msg: kafka.Message{Topic: "predictions"}})

	if h.calls != 2 {
		t.Fatalf("handler calls = %d, want 2", h.calls)
	}
	if cm.commits != 0 {
		t.Fatalf("failed message without DLQ was committed")
	}
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "predictions" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestAttemptRecoversPanic(t *testing.T) {
	c := newTestConsumer(t, 0)
	err := c.attempt(delivery{handler: panicHandler{}, msg: kafka.Message{Topic: "predictions"}})
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestConsumerStopWithoutStart(t *testing.T) {
	c := newTestConsumer(t, 0)
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"b:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}

func TestConfigValidation(t *testing.T) {
	brokers := []string{"b:9092"}
	producers := map[string][]ProducerOption{
		"acks":     {WithBrokers(brokers), WithRequiredAcks(2)},
		"attempts": {WithBrokers(brokers), WithMaxAttempts(-1)},
	}
	for name, opts := range producers {
		if _, err := NewProducer(opts...); err == nil {
			t.Fatalf("%s: expected producer config error", name)
		}
	}
	consumers := map[string][]ConsumerOption{
		"group":   {WithConsumerBrokers(brokers), WithConsumerGroupID("")},
		"backoff": {WithConsumerBrokers(brokers), WithConsumerRetry(3, time.Second, time.Millisecond)},
		"fetch":   {WithConsumerBrokers(brokers), WithConsumerFetch(100, 10)},
		"retry":   {WithConsumerBrokers(brokers), WithConsumerRetry(-1, 0, 0)},
	}
	for name, opts := range consumers {
		if _, err := NewConsumer(opts...); err == nil {
			t.Fatalf("%s: expected consumer config error", name)
		}
	}

	c, err := NewConsumer(WithConsumerBrokers(brokers), WithConsumerWorkers(0, 64))
	if err != nil {
		t.Fatalf("valid consumer: %v", err)
	}
	if c.cfg.WorkerCount != 1 || c.cfg.BufferSize != 64 {
		t.Fatalf("workers=%d buffer=%d", c.cfg.WorkerCount, c.cfg.BufferSize)
	}
}

func TestToHeadersSorted(t *testing.T) {
	hs := toHeaders(map[string]string{"b": "2", "a": "1"})
	if len(hs) != 2 || hs[0].Key != "a" || hs[1].Key != "b" {
		t.Fatalf("headers = %+v", hs)
	}
	if toHeaders(nil) != nil {
		t.Fatalf("nil map should give nil headers")
	}
}
