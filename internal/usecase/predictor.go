package usecase

import (
	"math"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/domain/service"
	"RecessionLens/internal/services/artifact"
	"RecessionLens/internal/services/features"
	xutil "RecessionLens/pkg/util"
)

// Predictor applies a trained bundle to new indicator history. It never refits
// the scaler and is safe for concurrent use.
type Predictor struct {
	bundle *artifact.Bundle
	clf    service.Classifier
}

// NewPredictor validates the bundle and rebuilds its network.
func NewPredictor(b *artifact.Bundle) (*Predictor, error) {
	if b == nil {
		return nil, errs.Config("predict", "no artifact")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	net, err := b.Network()
	if err != nil {
		return nil, err
	}
	return &Predictor{bundle: b, clf: net}, nil
}

// ArtifactID returns the id of the bundle in use.
func (p *Predictor) ArtifactID() string { return p.bundle.ID }

// WindowLength returns the bundle's window length.
func (p *Predictor) WindowLength() int { return p.bundle.WindowLength }

// Bundle returns the bundle in use.
func (p *Predictor) Bundle() *artifact.Bundle { return p.bundle }

// Predict returns one result per window of records, dated to the record right
// after each window. It needs at least L+1 records.
func (p *Predictor) Predict(records []models.IndicatorRecord) ([]models.PredictionResult, error) {
	L := p.bundle.WindowLength
	if len(records) < L+1 {
		return nil, errs.InsufficientData("predict", "%d records, need at least %d", len(records), L+1)
	}
	scaled, dates, err := p.prepare(records)
	if err != nil {
		return nil, err
	}
	windows, err := features.Build(scaled, make([]int, len(scaled)), dates, L)
	if err != nil {
		return nil, err
	}
	out := make([]models.PredictionResult, 0, len(windows))
	for i, w := range windows {
		prob, err := p.classify(w.Rows, i)
		if err != nil {
			return nil, err
		}
		out = append(out, models.NewPredictionResult(w.Target, prob))
	}
	return out, nil
}

// PredictNext predicts the month after the last record from the trailing
// window. It needs at least L records.
func (p *Predictor) PredictNext(records []models.IndicatorRecord) (models.PredictionResult, error) {
	L := p.bundle.WindowLength
	if len(records) < L {
		return models.PredictionResult{}, errs.InsufficientData("predict", "%d records, need at least %d", len(records), L)
	}
	scaled, _, err := p.prepare(records)
	if err != nil {
		return models.PredictionResult{}, err
	}
	w, err := features.BuildTail(scaled, L)
	if err != nil {
		return models.PredictionResult{}, err
	}
	prob, err := p.classify(w.Rows, 0)
	if err != nil {
		return models.PredictionResult{}, err
	}
	date := records[len(records)-1].Date
	if !date.IsZero() {
		date = xutil.NextMonth(date)
	}
	return models.NewPredictionResult(date, prob), nil
}

func (p *Predictor) prepare(records []models.IndicatorRecord) ([][]float64, []time.Time, error) {
	if err := features.CheckChronological(records); err != nil {
		return nil, nil, err
	}
	matrix, err := features.Matrix(records, p.bundle.FeatureOrder)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := p.bundle.Scaler.Transform(matrix)
	if err != nil {
		return nil, nil, err
	}
	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	return scaled, dates, nil
}

func (p *Predictor) classify(rows [][]float64, i int) (float64, error) {
	prob, err := p.clf.Predict(rows)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(prob) || math.IsInf(prob, 0) {
		return 0, errs.NumericDivergence("predict", "non-finite probability for window %d", i)
	}
	return prob, nil
}
