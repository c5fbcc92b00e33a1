package artifact

import (
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/services/features"
	"RecessionLens/internal/services/lstm"

	"github.com/google/uuid"
)

const (
	// FormatTag identifies a serialized bundle.
	FormatTag = "recessionlens.bundle"
	// Version is bumped whenever the bundle layout changes.
	Version = 1
)

// Bundle is the unit the trainer persists and the predictor loads: model
// weights together with the exact scaler used to build the training windows.
type Bundle struct {
	Format            string               `json:"format"`
	Version           int                  `json:"version"`
	ID                string               `json:"id"`
	CreatedAt         time.Time            `json:"created_at"`
	WindowLength      int                  `json:"window_length"`
	FeatureOrder      []string             `json:"feature_order"`
	Scaler            features.ScalerState `json:"scaler"`
	ScalerFingerprint string               `json:"scaler_fingerprint"`
	Architecture      string               `json:"architecture"`
	Model             lstm.Params          `json:"model"`
	Report            *TrainingReport      `json:"report,omitempty"`
}

// TrainingReport summarizes the run that produced a bundle.
type TrainingReport struct {
	RunID          string       `json:"run_id"`
	Epochs         int          `json:"epochs"`
	BatchSize      int          `json:"batch_size"`
	SplitRatio     float64      `json:"split_ratio"`
	ScalerFitScope string       `json:"scaler_fit_scope"`
	TrainWindows   int          `json:"train_windows"`
	TestWindows    int          `json:"test_windows"`
	FinalLoss      float64      `json:"final_loss"`
	ValLoss        float64      `json:"val_loss"`
	ValAccuracy    float64      `json:"val_accuracy"`
	Duration       string       `json:"duration"`
	History        []EpochStats `json:"history,omitempty"`
}

// EpochStats is one line of the training history.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// New binds a trained network to its scaler and stamps a fresh id.
func New(scaler features.ScalerState, windowLength int, net *lstm.Network, report *TrainingReport) (*Bundle, error) {
	b := &Bundle{
		Format:            FormatTag,
		Version:           Version,
		ID:                uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		WindowLength:      windowLength,
		FeatureOrder:      scaler.FeatureOrder(),
		Scaler:            scaler,
		ScalerFingerprint: scaler.Fingerprint(),
		Architecture:      net.Summary(),
		Model:             net.Params(),
		Report:            report,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate rejects bundles that are internally inconsistent.
func (b *Bundle) Validate() error {
	if b.Format != FormatTag {
		return errs.Data("artifact", "unknown format %q", b.Format)
	}
	if b.Version != Version {
		return errs.Data("artifact", "unsupported version %d", b.Version)
	}
	if b.WindowLength <= 0 {
		return errs.Shape("artifact", "window length must be positive, got %d", b.WindowLength)
	}
	if b.Scaler.Width() == 0 {
		return errs.Shape("artifact", "bundle has no scaler")
	}
	if b.Scaler.Width() != b.Model.InputSize {
		return errs.Shape("artifact", "scaler has %d features but model expects %d", b.Scaler.Width(), b.Model.InputSize)
	}
	if err := b.Scaler.CheckOrder(b.FeatureOrder); err != nil {
		return errs.Shape("artifact", "feature order does not match scaler").Wrap(err)
	}
	if b.ScalerFingerprint != b.Scaler.Fingerprint() {
		return errs.Shape("artifact", "scaler fingerprint %.12s does not belong to this model", b.Scaler.Fingerprint())
	}
	return b.Model.Validate()
}

// Network rebuilds the classifier from the stored weights.
func (b *Bundle) Network() (*lstm.Network, error) {
	return lstm.FromParams(b.Model)
}
