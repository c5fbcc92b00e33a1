package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/services/features"
	"RecessionLens/pkg/config"
)

func TestSplitSizes(t *testing.T) {
	cases := []struct {
		windows     int
		ratio       float64
		train, test int
	}{
		{10, 0.8, 8, 2},
		{8, 0.8, 6, 2},
		{18, 0.8, 14, 4},
		{1, 0.8, 0, 1},
		{100, 0.9, 90, 10},
		{7, 0.5, 3, 4},
	}
	for _, tc := range cases {
		train, test := SplitSizes(tc.windows, tc.ratio)
		if train != tc.train || test != tc.test {
			t.Errorf("SplitSizes(%d, %v) = %d/%d, want %d/%d", tc.windows, tc.ratio, train, test, tc.train, tc.test)
		}
	}
}

func TestFitScalerUsesOnlyGivenRows(t *testing.T) {
	rows := [][]float64{{1, 5}, {3, 2}, {2, 9}}
	s, err := fitScaler(rows[:2], []string{"a", "b"})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if lo, hi := s.Min(), s.Max(); lo[0] != 1 || hi[0] != 3 || lo[1] != 2 || hi[1] != 5 {
		t.Fatalf("bounds min=%v max=%v", lo, hi)
	}
	if _, err := fitScaler([][]float64{{1}}, []string{"a", "b"}); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestTrainerTrainsAndSaves(t *testing.T) {
	records := monthly(30, func(i int) float64 { return 100 + float64(i) - 4*float64(i%9) })
	series, err := features.Label(records)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	store := &memArtifacts{}
	tr := NewTrainer(smallTrainerConfig(), store, nil)

	b, err := tr.Train(context.Background(), series)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(store.bundles) != 1 || store.bundles[0].ID != b.ID {
		t.Fatalf("bundle not saved")
	}
	if b.Report.TrainWindows != 14 || b.Report.TestWindows != 4 || len(b.Report.History) != 3 {
		t.Fatalf("report %+v", b.Report)
	}
	if math.IsNaN(b.Report.FinalLoss) || b.Report.FinalLoss <= 0 {
		t.Fatalf("final loss %v", b.Report.FinalLoss)
	}

	// scaler bounds come from rows [0, nTrain+L-1) only
	maxCPI := 0.0
	for _, r := range records[:14+12-1] {
		maxCPI = math.Max(maxCPI, r.CPI)
	}
	if got := b.Scaler.Max()[0]; got != maxCPI {
		t.Fatalf("cpi max = %v, want %v from training rows", got, maxCPI)
	}
}

func TestTrainerFullScopeFitsAllRows(t *testing.T) {
	records := monthly(30, func(i int) float64 { return 100 + float64(i) })
	series, _ := features.Label(records)
	cfg := smallTrainerConfig()
	cfg.Epochs = 1
	cfg.ScalerFitScope = FitScopeFull
	b, err := NewTrainer(cfg, nil, nil).Train(context.Background(), series)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if got := b.Scaler.Max()[0]; got != 129 {
		t.Fatalf("cpi max = %v, want 129", got)
	}
}

func TestTrainerErrors(t *testing.T) {
	short, _ := features.Label(monthly(12, constantCPI))
	if _, err := NewTrainer(smallTrainerConfig(), nil, nil).Train(context.Background(), short); !errors.Is(err, errs.ErrInsufficientData) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}

	bad := smallTrainerConfig()
	bad.SplitRatio = 1
	series, _ := features.Label(monthly(30, constantCPI))
	if _, err := NewTrainer(bad, nil, nil).Train(context.Background(), series); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	diverging := smallTrainerConfig()
	diverging.Epochs = 5
	diverging.Model.LearningRate = 1e308
	store := &memArtifacts{}
	if _, err := NewTrainer(diverging, store, nil).Train(context.Background(), series); !errors.Is(err, errs.ErrNumericDivergence) {
		t.Fatalf("expected NumericDivergenceError, got %v", err)
	}
	if len(store.bundles) != 0 {
		t.Fatalf("diverged run saved %d bundles", len(store.bundles))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTrainer(smallTrainerConfig(), nil, nil).Train(ctx, series); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTrainerConfigFromPipeline(t *testing.T) {
	p := config.Default().Pipeline
	cfg := TrainerConfigFrom(p)
	if cfg.WindowLength != 12 || cfg.SplitRatio != 0.8 || cfg.Epochs != 100 || cfg.BatchSize != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ScalerFitScope != FitScopeTrain || cfg.Model.HiddenSize != 100 || cfg.Model.Layers != 2 {
		t.Fatalf("unexpected model config %+v", cfg.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
