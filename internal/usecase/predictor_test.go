package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/services/features"
)

// Twenty months with constant CPI, L=12 and a model fixed at 0.9: eight
// windows, every truth label 0, every prediction positive.
func TestEndToEndConstantModel(t *testing.T) {
	records := monthly(20, constantCPI)
	series, err := features.Label(records)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	for i, l := range series.Labels() {
		if l != 0 {
			t.Fatalf("label %d = %d, want 0 for constant cpi", i, l)
		}
	}

	p, err := NewPredictor(constantBundle(t, records, 12, 0.9))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	preds, err := p.Predict(records)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(preds) != 8 {
		t.Fatalf("expected 8 predictions, got %d", len(preds))
	}
	for i, r := range preds {
		if !r.Label || r.Date != records[i+12].Date {
			t.Fatalf("prediction %d = %+v", i, r)
		}
	}

	dir := t.TempDir()
	res, err := NewEvaluator(dir).Evaluate(context.Background(), p, records)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := [2][2]int{{0, 8}, {0, 0}}
	if res.Metrics.Confusion != want {
		t.Fatalf("confusion = %v, want %v", res.Metrics.Confusion, want)
	}
	if res.Metrics.AUC != nil {
		t.Fatalf("auc must be absent with a single class, got %v", *res.Metrics.AUC)
	}
	if res.Diagnostics.CPI != nil {
		t.Fatalf("20 records cannot fill a yearly decomposition")
	}

	csv, err := os.ReadFile(filepath.Join(dir, "predictions.csv"))
	if err != nil {
		t.Fatalf("predictions.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	if len(lines) != 9 || lines[0] != "date,probability,label,truth" || lines[1] != "2001-01-01,0.900000,1,0" {
		t.Fatalf("predictions.csv = %q", lines)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.json")); err != nil {
		t.Fatalf("report.json: %v", err)
	}
}

func TestPredictorHalfIsNegative(t *testing.T) {
	records := monthly(13, constantCPI)
	p, err := NewPredictor(constantBundle(t, records, 12, 0.5))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	preds, err := p.Predict(records)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(preds) != 1 || preds[0].Label {
		t.Fatalf("probability 0.5 must be label 0, got %+v", preds)
	}
}

func TestPredictNext(t *testing.T) {
	records := monthly(12, constantCPI)
	p, err := NewPredictor(constantBundle(t, monthly(20, constantCPI), 12, 0.9))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	res, err := p.PredictNext(records)
	if err != nil {
		t.Fatalf("predict next: %v", err)
	}
	if want := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC); !res.Date.Equal(want) || !res.Label {
		t.Fatalf("next = %+v, want positive at %v", res, want)
	}

	if _, err := p.Predict(records); !errors.Is(err, errs.ErrInsufficientData) {
		t.Fatalf("Predict with L records: expected InsufficientDataError, got %v", err)
	}
	if _, err := p.PredictNext(records[:11]); !errors.Is(err, errs.ErrInsufficientData) {
		t.Fatalf("PredictNext with L-1 records: expected InsufficientDataError, got %v", err)
	}

	swapped := append(records[:0:0], records...)
	swapped[3], swapped[4] = swapped[4], swapped[3]
	if _, err := p.PredictNext(swapped); !errors.Is(err, errs.ErrData) {
		t.Fatalf("out-of-order input: expected DataError, got %v", err)
	}
}

func TestPredictorRejectsNilBundle(t *testing.T) {
	if _, err := NewPredictor(nil); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
