package usecase

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"RecessionLens/internal/domain/errs"
	domrepo "RecessionLens/internal/domain/repository"
	svcmetrics "RecessionLens/internal/service/metrics"
	applogger "RecessionLens/pkg/logger"
)

// ModelRegistry holds the predictor currently serving requests. Reload swaps
// it atomically, so in-flight requests finish on the predictor they started
// with.
type ModelRegistry struct {
	store   domrepo.ArtifactStore
	current atomic.Pointer[Predictor]
	l       *applogger.Logger
}

func NewModelRegistry(store domrepo.ArtifactStore) *ModelRegistry {
	svcmetrics.Register()
	return &ModelRegistry{store: store}
}

// SetLogger injects a structured logger.
func (r *ModelRegistry) SetLogger(l *applogger.Logger) { r.l = l }

// Current returns the serving predictor.
func (r *ModelRegistry) Current() (*Predictor, error) {
	p := r.current.Load()
	if p == nil {
		return nil, errs.Config("predict", "no model loaded; run train first")
	}
	return p, nil
}

// Set replaces the serving predictor.
func (r *ModelRegistry) Set(p *Predictor) {
	prev := r.current.Swap(p)
	observe(p, prev)
	if r.l != nil {
		fields := []applogger.Field{applogger.String("artifact_id", p.ArtifactID())}
		if prev != nil {
			fields = append(fields, applogger.String("previous", prev.ArtifactID()))
		}
		r.l.Info("model activated", fields...)
	}
}

// Reload loads the latest bundle from the store and activates it.
func (r *ModelRegistry) Reload(ctx context.Context) (*Predictor, error) {
	if r.store == nil {
		return nil, errs.Config("predict", "no artifact store configured")
	}
	b, err := r.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	p, err := NewPredictor(b)
	if err != nil {
		return nil, err
	}
	r.Set(p)
	return p, nil
}

func observe(p, prev *Predictor) {
	if prev != nil {
		svcmetrics.ModelInfo.DeleteLabelValues(prev.ArtifactID(), strconv.Itoa(prev.WindowLength()))
	}
	svcmetrics.ModelInfo.WithLabelValues(p.ArtifactID(), strconv.Itoa(p.WindowLength())).Set(1)
	svcmetrics.ModelActivated.Set(float64(time.Now().Unix()))
	if rep := p.Bundle().Report; rep != nil {
		svcmetrics.ModelValidation.WithLabelValues("val_loss").Set(rep.ValLoss)
		svcmetrics.ModelValidation.WithLabelValues("val_accuracy").Set(rep.ValAccuracy)
	}
}
