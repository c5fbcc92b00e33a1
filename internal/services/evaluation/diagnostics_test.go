package evaluation

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
)

func TestDecomposeRecoversComponents(t *testing.T) {
	pattern := []float64{3, 2, 1, 0, -1, -2, -3, -2, -1, 0, 1, 2}
	values := make([]float64, 48)
	for i := range values {
		values[i] = float64(i) + pattern[i%12]
	}
	d, err := Decompose(values, 12)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	for i := 0; i < 6; i++ {
		if !math.IsNaN(d.Trend[i]) || !math.IsNaN(d.Trend[len(values)-1-i]) {
			t.Fatalf("trend edges must be undefined")
		}
	}
	for i := 6; i < len(values)-6; i++ {
		if math.Abs(d.Trend[i]-float64(i)) > 1e-9 {
			t.Fatalf("trend[%d]=%v", i, d.Trend[i])
		}
		if math.Abs(d.Resid[i]) > 1e-9 {
			t.Fatalf("resid[%d]=%v", i, d.Resid[i])
		}
	}
	for i := range values {
		if math.Abs(d.Seasonal[i]-pattern[i%12]) > 1e-9 {
			t.Fatalf("seasonal[%d]=%v want %v", i, d.Seasonal[i], pattern[i%12])
		}
	}

	if _, err := Decompose(values[:20], 12); !errors.Is(err, errs.ErrInsufficientData) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestSeriesEncodesNaNAsNull(t *testing.T) {
	b, err := json.Marshal(Series{1, math.NaN(), 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "[1,null,2]" {
		t.Fatalf("got %s", b)
	}
}

func records(n int) []models.IndicatorRecord {
	start := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.IndicatorRecord, n)
	for i := range out {
		out[i] = models.IndicatorRecord{
			Date:     start.AddDate(0, i, 0),
			CPI:      100 + float64(i),
			Bond:     5 - 0.1*float64(i),
			M3:       1000 + 2*float64(i),
			Interest: 2,
			WTI:      50 + float64(i%3),
		}
	}
	return out
}

func TestCorrelationMatrix(t *testing.T) {
	recs := records(10)
	labels := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	c, err := CorrelationMatrix(recs, labels)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if len(c.Names) != 6 || c.Names[5] != "label" {
		t.Fatalf("names %v", c.Names)
	}
	// cpi and m3 move together, bond moves against them
	if math.Abs(c.Values[0][2]-1) > 1e-9 || math.Abs(c.Values[0][1]+1) > 1e-9 {
		t.Fatalf("unexpected correlations %v", c.Values[0])
	}
	// interest is constant
	if !math.IsNaN(c.Values[0][3]) {
		t.Fatalf("constant column correlation should be undefined, got %v", c.Values[0][3])
	}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), "null") {
		t.Fatalf("expected null for undefined correlation: %s", b)
	}
}

func TestMonthOverMonth(t *testing.T) {
	recs := records(3)
	changes := MonthOverMonth(recs)
	if len(changes) != 5 || changes[0].Feature != "cpi" {
		t.Fatalf("unexpected changes %+v", changes)
	}
	cpi := changes[0].Values
	if !math.IsNaN(cpi[0]) || math.Abs(cpi[1]-0.01) > 1e-12 {
		t.Fatalf("cpi changes %v", cpi)
	}
}
