package models

import "time"

// Feature column names. FeatureOrder is the canonical order used by scalers,
// windows and artifacts.
const (
	FeatureCPI      = "cpi"
	FeatureBond     = "bond"
	FeatureM3       = "m3"
	FeatureInterest = "interest"
	FeatureWTI      = "wti"
)

// FeatureOrder returns the canonical feature order. A fresh slice is returned on every call.
func FeatureOrder() []string {
	return []string{FeatureCPI, FeatureBond, FeatureM3, FeatureInterest, FeatureWTI}
}

// IndicatorRecord is one monthly observation of the macro indicators.
type IndicatorRecord struct {
	Date     time.Time `json:"date"`
	CPI      float64   `json:"cpi"`
	Bond     float64   `json:"bond"`
	M3       float64   `json:"m3"`
	Interest float64   `json:"interest"`
	WTI      float64   `json:"wti"`
}

// Value returns the named feature, ok=false for unknown names.
func (r IndicatorRecord) Value(name string) (float64, bool) {
	switch name {
	case FeatureCPI:
		return r.CPI, true
	case FeatureBond:
		return r.Bond, true
	case FeatureM3:
		return r.M3, true
	case FeatureInterest:
		return r.Interest, true
	case FeatureWTI:
		return r.WTI, true
	default:
		return 0, false
	}
}

// Set assigns the named feature, ok=false for unknown names.
func (r *IndicatorRecord) Set(name string, v float64) bool {
	switch name {
	case FeatureCPI:
		r.CPI = v
	case FeatureBond:
		r.Bond = v
	case FeatureM3:
		r.M3 = v
	case FeatureInterest:
		r.Interest = v
	case FeatureWTI:
		r.WTI = v
	default:
		return false
	}
	return true
}

// LabeledSeries pairs records with their recession labels. Labels are assigned
// once when the series is built; accessors return copies.
type LabeledSeries struct {
	records []IndicatorRecord
	labels  []int
}

// NewLabeledSeries builds a series from records and labels of equal length.
func NewLabeledSeries(records []IndicatorRecord, labels []int) LabeledSeries {
	rs := make([]IndicatorRecord, len(records))
	copy(rs, records)
	ls := make([]int, len(labels))
	copy(ls, labels)
	return LabeledSeries{records: rs, labels: ls}
}

// Len returns the number of records.
func (s LabeledSeries) Len() int { return len(s.records) }

// Label returns the label at i.
func (s LabeledSeries) Label(i int) int { return s.labels[i] }

// Records returns a copy of the records.
func (s LabeledSeries) Records() []IndicatorRecord {
	out := make([]IndicatorRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Labels returns a copy of the labels.
func (s LabeledSeries) Labels() []int {
	out := make([]int, len(s.labels))
	copy(out, s.labels)
	return out
}

// Dates returns the record dates in order.
func (s LabeledSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.records))
	for i, r := range s.records {
		out[i] = r.Date
	}
	return out
}
