package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
)

func monthly(cpi []float64) []models.IndicatorRecord {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.IndicatorRecord, len(cpi))
	for i, v := range cpi {
		out[i] = models.IndicatorRecord{
			Date:     start.AddDate(0, i, 0),
			CPI:      v,
			Bond:     2 + float64(i)*0.1,
			M3:       1000 + float64(i),
			Interest: 1.5,
			WTI:      60 + float64(i%4),
		}
	}
	return out
}

func TestLabelSignRule(t *testing.T) {
	cpi := []float64{100, 101, 102, 103, 104, 105, 104, 103, 102, 101, 100, 99}
	series, err := Label(monthly(cpi))
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	want := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1}
	got := series.Labels()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("label[%d]=%d want %d (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestLabelMatchesTrailingMean(t *testing.T) {
	cpi := []float64{50, 49, 51, 52, 50, 48, 47, 49, 53, 54, 52, 51, 50, 55, 56, 54, 53, 52}
	series, err := Label(monthly(cpi))
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	for i := 0; i < len(cpi); i++ {
		want := 0
		if i >= LabelLookback {
			sum := 0.0
			for j := i - LabelLookback + 1; j < i; j++ {
				sum += (cpi[j] - cpi[j-1]) / cpi[j-1]
			}
			if sum/float64(LabelLookback-1) < 0 {
				want = 1
			}
		}
		if series.Label(i) != want {
			t.Fatalf("label[%d]=%d want %d", i, series.Label(i), want)
		}
	}
}

func TestLabelEarlyIndicesAreZero(t *testing.T) {
	// strictly falling CPI would label every eligible index 1
	cpi := []float64{110, 109, 108, 107, 106, 105, 104, 103}
	series, err := Label(monthly(cpi))
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	for i := 0; i < LabelLookback; i++ {
		if series.Label(i) != 0 {
			t.Fatalf("label[%d] should be 0", i)
		}
	}
	if series.Label(6) != 1 || series.Label(7) != 1 {
		t.Fatalf("expected falling CPI to be labeled 1, got %v", series.Labels())
	}
}

func TestLabelIsDeterministic(t *testing.T) {
	records := monthly([]float64{100, 99, 98, 99, 100, 101, 99, 98, 97, 99, 100})
	a, err := Label(records)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	b, _ := Label(records)
	for i := 0; i < a.Len(); i++ {
		if a.Label(i) != b.Label(i) {
			t.Fatalf("labels differ at %d", i)
		}
	}
}

func TestLabelConstantCPI(t *testing.T) {
	cpi := make([]float64, 20)
	for i := range cpi {
		cpi[i] = 250
	}
	series, err := Label(monthly(cpi))
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	for i, l := range series.Labels() {
		if l != 0 {
			t.Fatalf("label[%d]=%d want 0", i, l)
		}
	}
}

func TestLabelRejectsBadCPI(t *testing.T) {
	nan := monthly([]float64{1, 2, 3, math.NaN(), 5, 6, 7})
	if _, err := Label(nan); !errors.Is(err, errs.ErrData) {
		t.Fatalf("expected DataError for NaN, got %v", err)
	}
	zero := monthly([]float64{1, 2, 0, 4, 5, 6, 7})
	if _, err := Label(zero); !errors.Is(err, errs.ErrData) {
		t.Fatalf("expected DataError for zero cpi, got %v", err)
	}
}

func TestLabelWithLookbackRejectsTinyWindow(t *testing.T) {
	if _, err := LabelWithLookback(monthly([]float64{1, 2, 3}), 1); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}
