package features

import (
	"math"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// LabelLookback is the number of trailing records the recession rule looks at.
const LabelLookback = 6

// PercentChanges returns (x[i]-x[i-1])/x[i-1] for consecutive values.
// It returns a slice of length len(xs)-1, or nil if insufficient data.
func PercentChanges(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out = append(out, (xs[i]-xs[i-1])/xs[i-1])
	}
	return out
}

// Label derives recession labels from the CPI column: label i is 1 when the mean
// percentage change of CPI over records [i-6, i) is negative. Records with fewer
// than six predecessors are labeled 0.
func Label(records []models.IndicatorRecord) (models.LabeledSeries, error) {
	return LabelWithLookback(records, LabelLookback)
}

// LabelWithLookback is Label with an explicit trailing window size.
func LabelWithLookback(records []models.IndicatorRecord, lookback int) (models.LabeledSeries, error) {
	if lookback < 2 {
		return models.LabeledSeries{}, errs.Shape("labeler", "lookback must be at least 2, got %d", lookback)
	}
	if err := CheckChronological(records); err != nil {
		return models.LabeledSeries{}, err
	}
	cpi := make([]float64, len(records))
	for i, r := range records {
		if math.IsNaN(r.CPI) || math.IsInf(r.CPI, 0) {
			return models.LabeledSeries{}, errs.Data("labeler", "cpi is not finite at %s", r.Date.Format("2006-01-02"))
		}
		cpi[i] = r.CPI
	}

	labels := make([]int, len(records))
	for i := lookback; i < len(records); i++ {
		window := cpi[i-lookback : i]
		for j := 0; j < len(window)-1; j++ {
			if window[j] == 0 {
				return models.LabeledSeries{}, errs.Data("labeler", "cpi is zero at %s, percentage change undefined",
					records[i-lookback+j].Date.Format("2006-01-02"))
			}
		}
		if stat.Mean(PercentChanges(window), nil) < 0 {
			labels[i] = 1
		}
	}
	return models.NewLabeledSeries(records, labels), nil
}
