package evaluation

import (
	"encoding/json"
	"math"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Series is a numeric series where NaN marks an undefined point. It encodes
// NaN as JSON null.
type Series []float64

func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(s))
	for i := range s {
		if !math.IsNaN(s[i]) && !math.IsInf(s[i], 0) {
			v := s[i]
			out[i] = &v
		}
	}
	return json.Marshal(out)
}

// Correlation is a Pearson correlation matrix over named columns.
type Correlation struct {
	Names  []string `json:"names"`
	Values []Series `json:"values"`
}

// CorrelationMatrix correlates the indicator columns with each other and with
// labels. Pairs involving a constant column are undefined and reported as NaN.
func CorrelationMatrix(records []models.IndicatorRecord, labels []int) (Correlation, error) {
	if len(records) != len(labels) {
		return Correlation{}, errs.Shape("diagnostics", "%d records but %d labels", len(records), len(labels))
	}
	if len(records) < 2 {
		return Correlation{}, errs.InsufficientData("diagnostics", "correlation needs at least 2 records, got %d", len(records))
	}
	names := append(models.FeatureOrder(), "label")
	cols := len(names)
	data := make([]float64, 0, len(records)*cols)
	for i, r := range records {
		for _, name := range names[:cols-1] {
			v, _ := r.Value(name)
			data = append(data, v)
		}
		data = append(data, float64(labels[i]))
	}
	var sym mat.SymDense
	stat.CorrelationMatrix(&sym, mat.NewDense(len(records), cols, data), nil)

	values := make([]Series, cols)
	for i := 0; i < cols; i++ {
		values[i] = make(Series, cols)
		for j := 0; j < cols; j++ {
			values[i][j] = sym.At(i, j)
		}
	}
	return Correlation{Names: names, Values: values}, nil
}

// Decomposition is an additive split of a series into trend, seasonal and
// residual parts. Trend and residual are NaN where the centered moving
// average does not reach.
type Decomposition struct {
	Period   int         `json:"period"`
	Dates    []time.Time `json:"dates,omitempty"`
	Observed Series      `json:"observed"`
	Trend    Series      `json:"trend"`
	Seasonal Series      `json:"seasonal"`
	Resid    Series      `json:"resid"`
}

// Decompose splits values additively. The trend is a centered moving average
// of length period (2 x period for even periods), the seasonal component is
// the per-phase mean of the detrended series shifted to zero mean.
func Decompose(values []float64, period int) (Decomposition, error) {
	if period < 2 {
		return Decomposition{}, errs.Config("diagnostics", "period must be at least 2, got %d", period)
	}
	n := len(values)
	if n < 2*period {
		return Decomposition{}, errs.InsufficientData("diagnostics", "decomposition needs %d observations, got %d", 2*period, n)
	}

	filter := movingAverageFilter(period)
	half := len(filter) / 2
	trend := make(Series, n)
	for i := range trend {
		if i < half || i+half >= n {
			trend[i] = math.NaN()
			continue
		}
		sum := 0.0
		for k, w := range filter {
			sum += w * values[i-half+k]
		}
		trend[i] = sum
	}

	phase := make([]float64, period)
	for p := 0; p < period; p++ {
		var xs []float64
		for i := p; i < n; i += period {
			if !math.IsNaN(trend[i]) {
				xs = append(xs, values[i]-trend[i])
			}
		}
		phase[p] = stat.Mean(xs, nil)
	}
	shift := stat.Mean(phase, nil)

	seasonal := make(Series, n)
	resid := make(Series, n)
	for i := range values {
		seasonal[i] = phase[i%period] - shift
		resid[i] = values[i] - trend[i] - seasonal[i]
	}
	return Decomposition{
		Period:   period,
		Observed: append(Series(nil), values...),
		Trend:    trend,
		Seasonal: seasonal,
		Resid:    resid,
	}, nil
}

func movingAverageFilter(period int) []float64 {
	if period%2 == 1 {
		f := make([]float64, period)
		for i := range f {
			f[i] = 1 / float64(period)
		}
		return f
	}
	f := make([]float64, period+1)
	for i := range f {
		f[i] = 1 / float64(period)
	}
	f[0] /= 2
	f[period] /= 2
	return f
}

// DecomposeCPI decomposes the CPI column of records with a yearly period.
func DecomposeCPI(records []models.IndicatorRecord) (Decomposition, error) {
	values := make([]float64, len(records))
	dates := make([]time.Time, len(records))
	for i, r := range records {
		values[i] = r.CPI
		dates[i] = r.Date
	}
	d, err := Decompose(values, 12)
	if err != nil {
		return Decomposition{}, err
	}
	d.Dates = dates
	return d, nil
}

// Change is the month-over-month percentage change of one indicator. The
// first point, and any point following a zero, is undefined.
type Change struct {
	Feature string      `json:"feature"`
	Dates   []time.Time `json:"dates"`
	Values  Series      `json:"values"`
}

// MonthOverMonth returns one change series per indicator in canonical order.
func MonthOverMonth(records []models.IndicatorRecord) []Change {
	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	out := make([]Change, 0, len(models.FeatureOrder()))
	for _, name := range models.FeatureOrder() {
		vals := make(Series, len(records))
		for i := range records {
			if i == 0 {
				vals[i] = math.NaN()
				continue
			}
			prev, _ := records[i-1].Value(name)
			cur, _ := records[i].Value(name)
			if prev == 0 {
				vals[i] = math.NaN()
				continue
			}
			vals[i] = (cur - prev) / prev
		}
		out = append(out, Change{Feature: name, Dates: dates, Values: vals})
	}
	return out
}
