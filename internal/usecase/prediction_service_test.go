package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	svcmetrics "RecessionLens/internal/service/metrics"
	"RecessionLens/pkg/cache"
	"RecessionLens/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	sent   []*models.PredictionRecord
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, r *models.PredictionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, r)
	return p.err
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, rs []*models.PredictionRecord) error {
	for _, r := range rs {
		_ = p.Publish(ctx, r)
	}
	return p.err
}

func (p *recordingPublisher) Close() error { p.closed = true; return nil }

func TestPredictionServiceForecast(t *testing.T) {
	records := monthly(24, constantCPI)
	pred, err := NewPredictor(constantBundle(t, records, 12, 0.9))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	reg := NewModelRegistry(nil)
	reg.Set(pred)

	mc := cache.NewMemoryCache()
	defer mc.Close()
	pub := &recordingPublisher{}
	svc := NewPredictionService(reg, WithCache(mc, time.Minute), WithSink(NewPredictionSink(pub, nil, metrics.Nop{}, domrepo.SinkKafka)))

	first, err := svc.Forecast(context.Background(), records)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if first.ID == "" || first.ArtifactID != pred.ArtifactID() || !first.Label {
		t.Fatalf("unexpected record %+v", first)
	}
	if want := time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC); !first.Date.Equal(want) {
		t.Fatalf("date = %v, want %v", first.Date, want)
	}
	if len(first.Features) != 12 {
		t.Fatalf("expected trailing window of 12 records, got %d", len(first.Features))
	}

	second, err := svc.Forecast(context.Background(), records)
	if err != nil {
		t.Fatalf("forecast again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("identical input should be served from cache")
	}
	if len(pub.sent) != 1 {
		t.Fatalf("publisher called %d times, want 1", len(pub.sent))
	}

	hist, err := svc.History(context.Background(), time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != first.ID {
		t.Fatalf("history = %+v", hist)
	}
}

func TestPredictionServiceSinkFailureDoesNotFail(t *testing.T) {
	records := monthly(12, constantCPI)
	pred, _ := NewPredictor(constantBundle(t, records, 12, 0.2))
	reg := NewModelRegistry(nil)
	reg.Set(pred)
	pub := &recordingPublisher{err: errors.New("broker down")}

	rec, err := NewPredictionService(reg, WithSink(NewPredictionSink(pub, nil, metrics.Nop{}, domrepo.SinkKafka))).Forecast(context.Background(), records)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if rec.Label {
		t.Fatalf("0.2 must be label 0")
	}
}

func TestPredictionServiceErrors(t *testing.T) {
	svc := NewPredictionService(NewModelRegistry(nil))
	if _, err := svc.Forecast(context.Background(), monthly(12, constantCPI)); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("no model: expected ConfigError, got %v", err)
	}

	records := monthly(12, constantCPI)
	pred, _ := NewPredictor(constantBundle(t, records, 12, 0.9))
	svc.models.Set(pred)
	if _, err := svc.Forecast(context.Background(), records[:5]); !errors.Is(err, errs.ErrInsufficientData) {
		t.Fatalf("short input: expected InsufficientDataError, got %v", err)
	}
	if _, err := svc.History(context.Background(), time.Time{}, time.Time{}, 0); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("zero limit: expected ConfigError, got %v", err)
	}
}

func TestModelRegistryReload(t *testing.T) {
	store := &memArtifacts{}
	reg := NewModelRegistry(store)
	if _, err := reg.Reload(context.Background()); err == nil {
		t.Fatalf("expected error on empty store")
	}
	b := constantBundle(t, monthly(13, constantCPI), 12, 0.9)
	_ = store.Save(context.Background(), b)
	if _, err := reg.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	cur, err := reg.Current()
	if err != nil || cur.ArtifactID() != b.ID {
		t.Fatalf("current = %v, %v", cur, err)
	}
	if got := testutil.ToFloat64(svcmetrics.ModelInfo.WithLabelValues(b.ID, "12")); got != 1 {
		t.Fatalf("model info gauge = %v", got)
	}
}

func TestPredictionSinkRoutesByBackend(t *testing.T) {
	pub := &recordingPublisher{}
	r := &models.PredictionRecord{ID: "p1"}

	sink := NewPredictionSink(pub, nil, metrics.Nop{}, domrepo.SinkKafka)
	if err := sink.Process(context.Background(), r); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := sink.ProcessBatch(context.Background(), []*models.PredictionRecord{r, r}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(pub.sent) != 3 {
		t.Fatalf("published %d, want 3", len(pub.sent))
	}
	if err := sink.Close(); err != nil || !pub.closed {
		t.Fatalf("close should reach the publisher")
	}

	// clickhouse backend without a store is misconfigured
	if err := NewPredictionSink(pub, nil, metrics.Nop{}, domrepo.SinkClickHouse).Process(context.Background(), r); err == nil {
		t.Fatalf("expected error for missing store")
	}
	if err := sink.Process(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil prediction")
	}
}
