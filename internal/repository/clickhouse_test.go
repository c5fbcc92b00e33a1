package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
)

func TestRecentQuery(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		from, to time.Time
		where    string
		args     int
	}{
		{"open", time.Time{}, time.Time{}, "", 1},
		{"from only", from, time.Time{}, "WHERE date >= ?", 2},
		{"both", from, from.AddDate(1, 0, 0), "WHERE date >= ? AND date <= ?", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, args := recentQuery("predictions", tc.from, tc.to, 50)
			if tc.where == "" && strings.Contains(q, "WHERE") {
				t.Fatalf("unexpected WHERE in %q", q)
			}
			if !strings.Contains(q, tc.where) {
				t.Fatalf("query %q missing %q", q, tc.where)
			}
			if !strings.HasSuffix(q, "ORDER BY date DESC, created_at DESC LIMIT ?") {
				t.Fatalf("query %q not ordered newest first", q)
			}
			if len(args) != tc.args || args[len(args)-1] != 50 {
				t.Fatalf("args = %v", args)
			}
		})
	}
}

func TestPredictionRow(t *testing.T) {
	p := &models.PredictionRecord{
		ID:          "abc",
		Date:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Probability: 0.7,
		Label:       true,
		Features:    []models.IndicatorRecord{{CPI: 1}},
	}
	row, err := predictionRow(p)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if len(row) != 7 || row[4] != uint8(1) {
		t.Fatalf("row = %v", row)
	}
	if s, _ := row[6].(string); !strings.Contains(s, `"cpi":1`) {
		t.Fatalf("features column = %v", row[6])
	}
}

func TestIndicatorRowsRequireDates(t *testing.T) {
	_, err := indicatorRows([]models.IndicatorRecord{{CPI: 1}})
	if !errors.Is(err, errs.ErrData) {
		t.Fatalf("expected DataError, got %v", err)
	}
	rows, err := indicatorRows([]models.IndicatorRecord{{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), WTI: 3}})
	if err != nil || len(rows) != 1 || rows[0][5] != 3.0 {
		t.Fatalf("rows = %v, err = %v", rows, err)
	}
}
