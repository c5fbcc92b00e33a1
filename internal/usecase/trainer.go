package usecase

import (
	"context"
	"math"
	"math/rand"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/services/artifact"
	"RecessionLens/internal/services/features"
	"RecessionLens/internal/services/lstm"
	"RecessionLens/pkg/config"
	applogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/metrics"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// Scaler fit scopes.
const (
	FitScopeTrain = "train"
	FitScopeFull  = "full"
)

// TrainerConfig is the explicit configuration of one training run.
type TrainerConfig struct {
	WindowLength   int
	SplitRatio     float64
	Epochs         int
	BatchSize      int
	ScalerFitScope string
	Model          lstm.Config
}

// DefaultTrainerConfig returns L=12, an 80/20 split, 100 epochs of batch 32
// and the default network.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		WindowLength:   features.DefaultWindowLength,
		SplitRatio:     0.8,
		Epochs:         100,
		BatchSize:      32,
		ScalerFitScope: FitScopeTrain,
		Model:          lstm.DefaultConfig(len(models.FeatureOrder())),
	}
}

// TrainerConfigFrom derives a trainer configuration from the pipeline section.
func TrainerConfigFrom(p config.Pipeline) TrainerConfig {
	return TrainerConfig{
		WindowLength:   p.WindowLength,
		SplitRatio:     p.SplitRatio,
		Epochs:         p.Epochs,
		BatchSize:      p.BatchSize,
		ScalerFitScope: p.ScalerFitScope,
		Model:          p.ModelConfig(len(models.FeatureOrder())),
	}
}

func (c TrainerConfig) Validate() error {
	switch {
	case c.WindowLength <= 0:
		return errs.Config("train", "window length must be positive, got %d", c.WindowLength)
	case !(c.SplitRatio > 0 && c.SplitRatio < 1):
		return errs.Config("train", "split ratio must be in (0,1), got %v", c.SplitRatio)
	case c.Epochs <= 0:
		return errs.Config("train", "epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return errs.Config("train", "batch size must be positive, got %d", c.BatchSize)
	case c.ScalerFitScope != FitScopeTrain && c.ScalerFitScope != FitScopeFull:
		return errs.Config("train", "scaler fit scope must be %q or %q, got %q", FitScopeTrain, FitScopeFull, c.ScalerFitScope)
	}
	return nil
}

// SplitSizes returns the number of train and test windows for nWindows. The
// test partition is the trailing ceil((1-ratio)*nWindows) windows.
func SplitSizes(nWindows int, ratio float64) (nTrain, nTest int) {
	// rounding first keeps 0.2*10 at 2 instead of 2.0000000000000004 -> 3
	raw := math.Round((1-ratio)*float64(nWindows)*1e9) / 1e9
	nTest = int(math.Ceil(raw))
	if nTest < 1 && nWindows > 0 {
		nTest = 1
	}
	if nTest > nWindows {
		nTest = nWindows
	}
	return nWindows - nTest, nTest
}

// Trainer fits the scaler and the network on the leading part of a labeled
// series and persists both as one bundle.
type Trainer struct {
	cfg     TrainerConfig
	store   domrepo.ArtifactStore
	metrics domrepo.Metrics
	l       *applogger.Logger
}

// NewTrainer creates a trainer. store may be nil, in which case bundles are
// returned but not saved.
func NewTrainer(cfg TrainerConfig, store domrepo.ArtifactStore, m domrepo.Metrics) *Trainer {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Trainer{cfg: cfg, store: store, metrics: m}
}

// SetLogger injects a structured logger.
func (t *Trainer) SetLogger(l *applogger.Logger) { t.l = l }

// Config returns the trainer configuration.
func (t *Trainer) Config() TrainerConfig { return t.cfg }

// Train runs the whole training stage and returns the saved bundle.
func (t *Trainer) Train(ctx context.Context, series models.LabeledSeries) (*artifact.Bundle, error) {
	start := time.Now()
	if err := t.cfg.Validate(); err != nil {
		return nil, err
	}
	L := t.cfg.WindowLength
	n := series.Len()
	if n <= L {
		return nil, errs.InsufficientData("train", "%d records cannot fill a window of %d", n, L)
	}
	order := models.FeatureOrder()
	matrix, err := features.Matrix(series.Records(), order)
	if err != nil {
		return nil, err
	}

	nTrain, nTest := SplitSizes(n-L, t.cfg.SplitRatio)
	if nTrain < 1 {
		return nil, errs.InsufficientData("train", "%d windows leave none for training at split %v", n-L, t.cfg.SplitRatio)
	}

	fitRows := matrix[:nTrain+L-1]
	if t.cfg.ScalerFitScope == FitScopeFull {
		fitRows = matrix
		t.warn("scaler fit on the full series; test metrics include leakage")
	}
	scaler, err := fitScaler(fitRows, order)
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.Transform(matrix)
	if err != nil {
		return nil, err
	}
	windows, err := features.Build(scaled, series.Labels(), series.Dates(), L)
	if err != nil {
		return nil, err
	}
	trainX, trainY := tensors(windows[:nTrain])
	testX, testY := tensors(windows[nTrain:])

	mc := t.cfg.Model
	mc.InputSize = len(order)
	net, err := lstm.New(mc)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	t.info("training started",
		applogger.String("run_id", runID),
		applogger.Int("records", n),
		applogger.Int("train_windows", nTrain),
		applogger.Int("test_windows", nTest),
		applogger.String("model", net.Summary()),
	)

	rng := rand.New(rand.NewSource(mc.Seed + 2))
	history := make([]artifact.EpochStats, 0, t.cfg.Epochs)
	var stats artifact.EpochStats
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loss, err := t.epoch(net, trainX, trainY, rng)
		if err != nil {
			t.metrics.RecordError("numeric")
			return nil, err
		}
		valLoss, valAcc, err := net.Evaluate(testX, testY)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(valLoss) || math.IsInf(valLoss, 0) {
			t.metrics.RecordError("numeric")
			return nil, errs.NumericDivergence("train", "non-finite validation loss at epoch %d", epoch)
		}
		stats = artifact.EpochStats{Epoch: epoch, Loss: loss, ValLoss: valLoss, ValAccuracy: valAcc}
		history = append(history, stats)
		t.metrics.RecordEpoch()
		t.metrics.RecordTrainLoss("train", loss)
		t.metrics.RecordTrainLoss("val", valLoss)
		if t.l != nil {
			t.l.Debug("epoch done",
				applogger.Int("epoch", epoch),
				applogger.Float64("loss", loss),
				applogger.Float64("val_loss", valLoss),
				applogger.Float64("val_accuracy", valAcc),
			)
		}
	}

	report := &artifact.TrainingReport{
		RunID:          runID,
		Epochs:         t.cfg.Epochs,
		BatchSize:      t.cfg.BatchSize,
		SplitRatio:     t.cfg.SplitRatio,
		ScalerFitScope: t.cfg.ScalerFitScope,
		TrainWindows:   nTrain,
		TestWindows:    nTest,
		FinalLoss:      stats.Loss,
		ValLoss:        stats.ValLoss,
		ValAccuracy:    stats.ValAccuracy,
		Duration:       time.Since(start).Round(time.Millisecond).String(),
		History:        history,
	}
	bundle, err := artifact.New(scaler, L, net, report)
	if err != nil {
		return nil, err
	}
	if t.store != nil {
		if err := t.store.Save(ctx, bundle); err != nil {
			return nil, err
		}
	}
	t.metrics.RecordLatency("train", time.Since(start).Seconds())
	t.info("training finished",
		applogger.String("run_id", runID),
		applogger.String("artifact_id", bundle.ID),
		applogger.Float64("loss", stats.Loss),
		applogger.Float64("val_loss", stats.ValLoss),
		applogger.Float64("val_accuracy", stats.ValAccuracy),
		applogger.Duration("duration", time.Since(start)),
	)
	return bundle, nil
}

// epoch runs one pass over the training windows in shuffled mini-batches and
// returns the window-weighted mean loss.
func (t *Trainer) epoch(net *lstm.Network, xs [][][]float64, ys []float64, rng *rand.Rand) (float64, error) {
	idx := rng.Perm(len(xs))
	var total float64
	for s := 0; s < len(idx); s += t.cfg.BatchSize {
		e := s + t.cfg.BatchSize
		if e > len(idx) {
			e = len(idx)
		}
		bx := make([][][]float64, 0, e-s)
		by := make([]float64, 0, e-s)
		for _, i := range idx[s:e] {
			bx = append(bx, xs[i])
			by = append(by, ys[i])
		}
		loss, err := net.TrainBatch(bx, by)
		if err != nil {
			return 0, err
		}
		total += loss * float64(e-s)
	}
	return total / float64(len(xs)), nil
}

func (t *Trainer) info(msg string, fields ...applogger.Field) {
	if t.l != nil {
		t.l.Info(msg, fields...)
	}
}

func (t *Trainer) warn(msg string, fields ...applogger.Field) {
	if t.l != nil {
		t.l.Warn(msg, fields...)
	}
}

// fitScaler learns per-column bounds from rows. It is the only place a
// ScalerState is fit.
func fitScaler(rows [][]float64, order []string) (features.ScalerState, error) {
	if len(rows) == 0 {
		return features.ScalerState{}, errs.InsufficientData("scaler", "no rows to fit")
	}
	width := len(order)
	lo := make([]float64, width)
	hi := make([]float64, width)
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, r := range rows {
			if len(r) != width {
				return features.ScalerState{}, errs.Shape("scaler", "row %d has %d features, expected %d", i, len(r), width)
			}
			col[i] = r[j]
		}
		lo[j] = floats.Min(col)
		hi[j] = floats.Max(col)
	}
	return features.NewScalerState(lo, hi, order)
}

func tensors(ws []models.Window) ([][][]float64, []float64) {
	xs := make([][][]float64, len(ws))
	ys := make([]float64, len(ws))
	for i, w := range ws {
		xs[i] = w.Rows
		ys[i] = float64(w.Label)
	}
	return xs, ys
}
