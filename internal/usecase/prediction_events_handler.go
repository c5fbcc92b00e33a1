package usecase

import (
	"context"
	"encoding/json"
	"time"

	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	pkgkafka "RecessionLens/pkg/kafka"
	applogger "RecessionLens/pkg/logger"
)

// PredictionEventsHandler consumes published predictions and writes them to
// the prediction store.
type PredictionEventsHandler struct {
	topic   string
	store   domrepo.PredictionStore
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewPredictionEventsHandler(topic string, store domrepo.PredictionStore, metrics domrepo.Metrics) *PredictionEventsHandler {
	return &PredictionEventsHandler{topic: topic, store: store, metrics: metrics}
}

// SetLogger injects a structured logger.
func (h *PredictionEventsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *PredictionEventsHandler) Topic() string { return h.topic }

func (h *PredictionEventsHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.PredictionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if rec.ID == "" {
		rec.ID = pkgkafka.TraceIDFrom(ctx)
	}
	if !rec.CreatedAt.IsZero() {
		// publish-to-consume latency
		h.metrics.RecordLatency("prediction_e2e", time.Since(rec.CreatedAt).Seconds())
	}

	start := time.Now()
	err := h.store.Store(ctx, &rec)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	if h.l != nil {
		h.l.Debug("prediction stored",
			applogger.String("id", rec.ID),
			applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
			applogger.String("date", rec.Date.Format("2006-01-02")),
		)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*PredictionEventsHandler)(nil)
