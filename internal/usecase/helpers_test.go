package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/services/artifact"
	"RecessionLens/internal/services/features"
	"RecessionLens/internal/services/lstm"
)

// monthly returns n records starting January 2000. cpi(i) gives the CPI of
// record i; the other indicators vary so no column is constant.
func monthly(n int, cpi func(i int) float64) []models.IndicatorRecord {
	out := make([]models.IndicatorRecord, n)
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.IndicatorRecord{
			Date:     start.AddDate(0, i, 0),
			CPI:      cpi(i),
			Bond:     2 + float64(i%7)*0.1,
			M3:       1000 + float64(i)*3,
			Interest: 1 + float64(i%5)*0.25,
			WTI:      40 + float64(i%11),
		}
	}
	return out
}

func constantCPI(int) float64 { return 100 }

// constantBundle binds a model that always outputs prob to a scaler fit on records.
func constantBundle(t *testing.T, records []models.IndicatorRecord, L int, prob float64) *artifact.Bundle {
	t.Helper()
	matrix, err := features.Matrix(records, models.FeatureOrder())
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	scaler, err := fitScaler(matrix, models.FeatureOrder())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	net, err := lstm.FromParams(lstm.Constant(5, 4, 2, prob))
	if err != nil {
		t.Fatalf("net: %v", err)
	}
	b, err := artifact.New(scaler, L, net, nil)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	return b
}

type memArtifacts struct {
	mu      sync.Mutex
	bundles []*artifact.Bundle
}

func (m *memArtifacts) Save(_ context.Context, b *artifact.Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles = append(m.bundles, b)
	return nil
}

func (m *memArtifacts) Latest(context.Context) (*artifact.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bundles) == 0 {
		return nil, domrepo.ErrNotFound
	}
	return m.bundles[len(m.bundles)-1], nil
}

func (m *memArtifacts) Get(_ context.Context, id string) (*artifact.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bundles {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, domrepo.ErrNotFound
}

func (m *memArtifacts) Close() error { return nil }

type staticSource struct{ records []models.IndicatorRecord }

func (s staticSource) Load(context.Context) ([]models.IndicatorRecord, error) { return s.records, nil }

func smallTrainerConfig() TrainerConfig {
	cfg := DefaultTrainerConfig()
	cfg.Epochs = 3
	cfg.BatchSize = 4
	cfg.Model.HiddenSize = 4
	cfg.Model.Layers = 1
	cfg.Model.LearningRate = 0.01
	return cfg
}
