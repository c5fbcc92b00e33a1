package features

import (
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
)

// DefaultWindowLength is the number of monthly rows in one model input.
const DefaultWindowLength = 12

// Build slices scaled rows into N-L overlapping windows. Window i covers rows
// [i, i+L) and carries the label and date of row i+L. Order is preserved.
func Build(scaled [][]float64, labels []int, dates []time.Time, windowLength int) ([]models.Window, error) {
	n := len(scaled)
	if windowLength <= 0 {
		return nil, errs.Shape("sequence", "window length must be positive, got %d", windowLength)
	}
	if len(labels) != n {
		return nil, errs.Shape("sequence", "%d rows but %d labels", n, len(labels))
	}
	if dates != nil && len(dates) != n {
		return nil, errs.Shape("sequence", "%d rows but %d dates", n, len(dates))
	}
	if n <= windowLength {
		return nil, errs.Shape("sequence", "%d rows cannot fill a window of %d", n, windowLength)
	}
	if err := checkRows(scaled); err != nil {
		return nil, err
	}

	windows := make([]models.Window, 0, n-windowLength)
	for i := 0; i+windowLength < n; i++ {
		w := models.Window{
			Rows:  copyRows(scaled[i : i+windowLength]),
			Label: labels[i+windowLength],
		}
		if dates != nil {
			w.Target = dates[i+windowLength]
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// BuildTail returns the window made of the last L rows, used to predict the
// period after the final record.
func BuildTail(scaled [][]float64, windowLength int) (models.Window, error) {
	if windowLength <= 0 {
		return models.Window{}, errs.Shape("sequence", "window length must be positive, got %d", windowLength)
	}
	if len(scaled) < windowLength {
		return models.Window{}, errs.InsufficientData("sequence", "%d rows, need %d", len(scaled), windowLength)
	}
	if err := checkRows(scaled); err != nil {
		return models.Window{}, err
	}
	return models.Window{Rows: copyRows(scaled[len(scaled)-windowLength:])}, nil
}

func checkRows(rows [][]float64) error {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	for i, r := range rows {
		if len(r) != width {
			return errs.Shape("sequence", "row %d has %d features, expected %d", i, len(r), width)
		}
	}
	return nil
}

func copyRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
