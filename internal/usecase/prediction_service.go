package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/domain/service"
	"RecessionLens/pkg/cache"
	applogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/metrics"

	"github.com/google/uuid"
)

const (
	forecastCachePrefix = "forecast"
	recentKeep          = 1000
)

// PredictionService answers next-month forecasts with the serving model,
// caches them by input and artifact, and forwards them to the configured sink.
type PredictionService struct {
	models  *ModelRegistry
	cache   cache.Service
	ttl     time.Duration
	sink    domrepo.PredictionSink
	store   domrepo.PredictionStore
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu     sync.RWMutex
	recent []*models.PredictionRecord
}

// PredictionOption configures a PredictionService.
type PredictionOption func(*PredictionService)

// WithCache caches forecasts for ttl.
func WithCache(c cache.Service, ttl time.Duration) PredictionOption {
	return func(s *PredictionService) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithSink sends every new forecast to sink.
func WithSink(sink domrepo.PredictionSink) PredictionOption {
	return func(s *PredictionService) { s.sink = sink }
}

// WithStore reads history from store.
func WithStore(store domrepo.PredictionStore) PredictionOption {
	return func(s *PredictionService) { s.store = store }
}

// WithMetrics records prediction metrics.
func WithMetrics(m domrepo.Metrics) PredictionOption {
	return func(s *PredictionService) { s.metrics = m }
}

func NewPredictionService(reg *ModelRegistry, opts ...PredictionOption) *PredictionService {
	s := &PredictionService{models: reg, metrics: metrics.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger injects a structured logger.
func (s *PredictionService) SetLogger(l *applogger.Logger) { s.l = l }

var (
	_ service.Forecaster        = (*PredictionService)(nil)
	_ service.PredictionHistory = (*PredictionService)(nil)
)

// Forecast predicts the month after the last record.
func (s *PredictionService) Forecast(ctx context.Context, records []models.IndicatorRecord) (*models.PredictionRecord, error) {
	start := time.Now()
	p, err := s.models.Current()
	if err != nil {
		return nil, s.fail(err)
	}

	key, keyErr := forecastKey(p.ArtifactID(), records)
	if s.cache != nil && keyErr == nil {
		var cached models.PredictionRecord
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordLatency("forecast_cached", time.Since(start).Seconds())
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.warn("forecast cache read failed", applogger.Error(err))
		}
	}

	res, err := p.PredictNext(records)
	if err != nil {
		return nil, s.fail(err)
	}
	L := p.WindowLength()
	rec := &models.PredictionRecord{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Date:        res.Date,
		Probability: res.Probability,
		Label:       res.Label,
		ArtifactID:  p.ArtifactID(),
		Features:    append([]models.IndicatorRecord(nil), records[len(records)-L:]...),
	}

	if s.cache != nil && keyErr == nil {
		if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil {
			s.warn("forecast cache write failed", applogger.Error(err))
		}
	}
	s.remember(rec)
	s.deliver(ctx, rec)

	s.metrics.RecordPrediction(rec.Label, rec.Probability)
	s.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	if s.l != nil {
		s.l.Info("forecast",
			applogger.String("id", rec.ID),
			applogger.String("date", rec.Date.Format("2006-01-02")),
			applogger.Float64("probability", rec.Probability),
			applogger.Bool("label", rec.Label),
			applogger.String("artifact_id", rec.ArtifactID),
		)
	}
	return rec, nil
}

// deliver forwards rec to the sink. Sink failures are logged and counted but
// do not fail the forecast.
func (s *PredictionService) deliver(ctx context.Context, rec *models.PredictionRecord) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Process(ctx, rec); err != nil {
		s.metrics.RecordError("sink")
		s.warn("prediction delivery failed", applogger.String("id", rec.ID), applogger.Error(err))
	}
}

// History lists forecasts whose target date lies in [from, to], newest first.
// Without a store it answers from the forecasts made by this process.
func (s *PredictionService) History(ctx context.Context, from, to time.Time, limit int) ([]*models.PredictionRecord, error) {
	if limit <= 0 {
		return nil, errs.Config("history", "limit must be positive, got %d", limit)
	}
	if s.store != nil {
		return s.store.Recent(ctx, from, to, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PredictionRecord, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.recent[i]
		if (!from.IsZero() && r.Date.Before(from)) || (!to.IsZero() && r.Date.After(to)) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *PredictionService) remember(rec *models.PredictionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, rec)
	if len(s.recent) > recentKeep {
		s.recent = append(s.recent[:0:0], s.recent[len(s.recent)-recentKeep:]...)
	}
}

func (s *PredictionService) fail(err error) error {
	kind := "unknown"
	if k := errs.KindOf(err); k != nil {
		kind = k.Error()
	}
	s.metrics.RecordError(kind)
	return err
}

func (s *PredictionService) warn(msg string, fields ...applogger.Field) {
	if s.l != nil {
		s.l.Warn(msg, fields...)
	}
}

// forecastKey identifies a forecast by artifact and the exact input.
func forecastKey(artifactID string, records []models.IndicatorRecord) (string, error) {
	b, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return cache.GenerateKeyWithParams(forecastCachePrefix, artifactID, cache.HashKey(string(b))), nil
}
