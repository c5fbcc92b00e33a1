package features

import (
	"errors"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
)

func rows(n, f int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, f)
		for j := range out[i] {
			out[i][j] = float64(i*10 + j)
		}
	}
	return out
}

func TestBuildWindowCount(t *testing.T) {
	for _, c := range []struct{ n, l int }{{13, 12}, {20, 12}, {50, 12}, {5, 1}, {30, 7}} {
		labels := make([]int, c.n)
		windows, err := Build(rows(c.n, 5), labels, nil, c.l)
		if err != nil {
			t.Fatalf("n=%d l=%d: %v", c.n, c.l, err)
		}
		if len(windows) != c.n-c.l {
			t.Fatalf("n=%d l=%d: got %d windows", c.n, c.l, len(windows))
		}
		for i, w := range windows {
			if len(w.Rows) != c.l {
				t.Fatalf("window %d has %d rows", i, len(w.Rows))
			}
		}
	}
}

func TestBuildAlignsLabelsAndDates(t *testing.T) {
	n, l := 16, 12
	labels := make([]int, n)
	dates := make([]time.Time, n)
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range labels {
		labels[i] = i % 2
		dates[i] = start.AddDate(0, i, 0)
	}
	windows, err := Build(rows(n, 3), labels, dates, l)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i, w := range windows {
		if w.Rows[0][0] != float64(i*10) {
			t.Fatalf("window %d starts at row %v", i, w.Rows[0][0])
		}
		if w.Label != labels[i+l] {
			t.Fatalf("window %d label %d want %d", i, w.Label, labels[i+l])
		}
		if !w.Target.Equal(dates[i+l]) {
			t.Fatalf("window %d target %v want %v", i, w.Target, dates[i+l])
		}
	}
}

func TestBuildRejectsShortInput(t *testing.T) {
	if _, err := Build(rows(12, 5), make([]int, 12), nil, 12); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError when N == L, got %v", err)
	}
	if _, err := Build(rows(20, 5), make([]int, 19), nil, 12); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError for label mismatch, got %v", err)
	}
	if _, err := Build(rows(20, 5), make([]int, 20), nil, 0); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError for zero window, got %v", err)
	}
}

func TestBuildCopiesRows(t *testing.T) {
	in := rows(14, 2)
	windows, err := Build(in, make([]int, 14), nil, 12)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	windows[0].Rows[0][0] = -1
	if in[0][0] != 0 {
		t.Fatalf("window shares memory with input")
	}
}

func TestBuildTail(t *testing.T) {
	w, err := BuildTail(rows(15, 2), 12)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(w.Rows) != 12 || w.Rows[0][0] != 30 || w.Rows[11][0] != 140 {
		t.Fatalf("unexpected tail window %v", w.Rows)
	}
	if _, err := BuildTail(rows(11, 2), 12); !errors.Is(err, errs.ErrInsufficientData) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}
