package features

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
)

// ScalerState holds per-feature min/max bounds learned once from training rows.
// It is immutable: accessors return copies and Transform never writes to it.
type ScalerState struct {
	min   []float64
	max   []float64
	order []string
}

type scalerJSON struct {
	Min          []float64 `json:"min"`
	Max          []float64 `json:"max"`
	FeatureOrder []string  `json:"feature_order"`
}

// NewScalerState builds a state from per-feature bounds. Bounds are computed by
// the trainer over its training rows or read back from an artifact.
func NewScalerState(lo, hi []float64, featureOrder []string) (ScalerState, error) {
	if len(lo) != len(hi) || len(lo) != len(featureOrder) {
		return ScalerState{}, errs.Shape("scaler", "inconsistent bounds: min=%d max=%d features=%d", len(lo), len(hi), len(featureOrder))
	}
	if len(lo) == 0 {
		return ScalerState{}, errs.Shape("scaler", "empty scaler state")
	}
	for j := range lo {
		if hi[j] < lo[j] {
			return ScalerState{}, errs.Data("scaler", "max < min for %s", featureOrder[j])
		}
	}
	s := ScalerState{
		min:   append([]float64(nil), lo...),
		max:   append([]float64(nil), hi...),
		order: append([]string(nil), featureOrder...),
	}
	return s, nil
}

// Width returns the number of features the state was fit with.
func (s ScalerState) Width() int { return len(s.min) }

// Min returns a copy of the per-feature minimums.
func (s ScalerState) Min() []float64 { return append([]float64(nil), s.min...) }

// Max returns a copy of the per-feature maximums.
func (s ScalerState) Max() []float64 { return append([]float64(nil), s.max...) }

// FeatureOrder returns a copy of the feature names in column order.
func (s ScalerState) FeatureOrder() []string { return append([]string(nil), s.order...) }

// Transform maps each column so the fitted min/max land on 0/1. Values outside
// the fitted range extrapolate. Constant columns map to 0.
func (s ScalerState) Transform(rows [][]float64) ([][]float64, error) {
	if err := s.checkWidth(rows); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		r := make([]float64, len(row))
		for j, v := range row {
			span := s.max[j] - s.min[j]
			if span == 0 {
				r[j] = 0
				continue
			}
			r[j] = (v - s.min[j]) / span
		}
		out[i] = r
	}
	return out, nil
}

// InverseTransform undoes Transform.
func (s ScalerState) InverseTransform(rows [][]float64) ([][]float64, error) {
	if err := s.checkWidth(rows); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = v*(s.max[j]-s.min[j]) + s.min[j]
		}
		out[i] = r
	}
	return out, nil
}

func (s ScalerState) checkWidth(rows [][]float64) error {
	if len(s.min) == 0 {
		return errs.Shape("scaler", "scaler is not fitted")
	}
	for i, row := range rows {
		if len(row) != len(s.min) {
			return errs.Shape("scaler", "row %d has %d columns, scaler was fit with %d", i, len(row), len(s.min))
		}
	}
	return nil
}

// CheckOrder fails with ShapeError unless featureOrder matches the fitted order exactly.
func (s ScalerState) CheckOrder(featureOrder []string) error {
	if len(featureOrder) != len(s.order) {
		return errs.Shape("scaler", "feature count %d differs from fitted %d", len(featureOrder), len(s.order))
	}
	for i := range featureOrder {
		if featureOrder[i] != s.order[i] {
			return errs.Shape("scaler", "feature %d is %q, scaler was fit with %q", i, featureOrder[i], s.order[i])
		}
	}
	return nil
}

// Fingerprint identifies the exact bounds and order; artifacts record it to
// detect a scaler that does not belong to their model.
func (s ScalerState) Fingerprint() string {
	b, _ := json.Marshal(scalerJSON{Min: s.min, Max: s.max, FeatureOrder: s.order})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// MarshalJSON writes {min, max, feature_order}.
func (s ScalerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(scalerJSON{Min: s.min, Max: s.max, FeatureOrder: s.order})
}

// UnmarshalJSON validates bounds while decoding.
func (s *ScalerState) UnmarshalJSON(b []byte) error {
	var raw scalerJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode scaler: %w", err)
	}
	st, err := NewScalerState(raw.Min, raw.Max, raw.FeatureOrder)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Matrix extracts the named features from records, one row per record.
func Matrix(records []models.IndicatorRecord, featureOrder []string) ([][]float64, error) {
	out := make([][]float64, len(records))
	for i, r := range records {
		row := make([]float64, len(featureOrder))
		for j, name := range featureOrder {
			v, ok := r.Value(name)
			if !ok {
				return nil, errs.Data("features", "unknown feature %q", name)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errs.Data("features", "%s is not finite at %s", name, r.Date.Format("2006-01-02"))
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}
