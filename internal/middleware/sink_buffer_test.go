package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"RecessionLens/internal/domain/models"
	"RecessionLens/pkg/metrics"
)

// flakySink fails the first failures calls and records what it accepted.
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []string
	closed   bool
}

func (s *flakySink) accept(rs ...*models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("downstream unavailable")
	}
	for _, r := range rs {
		s.got = append(s.got, r.ID)
	}
	return nil
}

func (s *flakySink) Process(_ context.Context, r *models.PredictionRecord) error { return s.accept(r) }
func (s *flakySink) ProcessBatch(_ context.Context, rs []*models.PredictionRecord) error {
	return s.accept(rs...)
}
func (s *flakySink) Close() error { s.closed = true; return nil }

func (s *flakySink) accepted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func rec(id string) *models.PredictionRecord {
	return &models.PredictionRecord{ID: id, ArtifactID: "a", Probability: 0.4}
}

func TestSinkBufferRedeliversAfterFailure(t *testing.T) {
	sink := &flakySink{failures: 2}
	b := NewSinkBuffer(sink, metrics.Nop{}, WithBackoff(time.Millisecond, 5*time.Millisecond))

	if err := b.Process(context.Background(), rec("p1")); err == nil {
		t.Fatalf("expected downstream error")
	}
	if b.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", b.Pending())
	}

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.accepted()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered prediction never redelivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.accepted(); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("accepted = %v", got)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := b.Close(); err != nil || !sink.closed {
		t.Fatalf("close should reach the sink")
	}
}

func TestSinkBufferStopFlushesPending(t *testing.T) {
	sink := &flakySink{failures: 1}
	b := NewSinkBuffer(sink, metrics.Nop{})
	_ = b.Process(context.Background(), rec("p1"))

	// stop without ever starting is a no-op
	if err := b.Stop(context.Background()); err != nil || b.Pending() != 1 {
		t.Fatalf("stop before start: err=%v pending=%d", err, b.Pending())
	}

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err == nil {
		t.Fatalf("second start should fail")
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if b.Pending() != 0 || len(sink.accepted()) != 1 {
		t.Fatalf("pending=%d accepted=%v", b.Pending(), sink.accepted())
	}
}

func TestSinkBufferRejectsInvalid(t *testing.T) {
	sink := &flakySink{}
	b := NewSinkBuffer(sink, metrics.Nop{})
	bad := []*models.PredictionRecord{
		nil,
		{ArtifactID: "a", Probability: 0.1},
		{ID: "x", Probability: 0.1},
		{ID: "x", ArtifactID: "a", Probability: math.NaN()},
		{ID: "x", ArtifactID: "a", Probability: 1.5},
	}
	for i, r := range bad {
		if err := b.Process(context.Background(), r); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := b.ProcessBatch(context.Background(), []*models.PredictionRecord{rec("ok"), bad[1]}); err == nil {
		t.Fatalf("batch with an invalid record should fail")
	}
	if sink.calls != 0 || b.Pending() != 0 {
		t.Fatalf("invalid predictions must not reach the sink or the buffer")
	}
}
