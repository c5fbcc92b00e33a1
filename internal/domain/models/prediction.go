package models

import "time"

// DecisionThreshold separates the two classes; a probability equal to it is label 0.
const DecisionThreshold = 0.5

// Window is a fixed-length run of scaled feature rows and the label of the
// record right after it.
type Window struct {
	Rows   [][]float64
	Label  int
	Target time.Time
}

// PredictionResult is the classifier output for one window.
type PredictionResult struct {
	Date        time.Time `json:"date"`
	Probability float64   `json:"probability"`
	Label       bool      `json:"label"`
}

// NewPredictionResult derives the label with a strict > comparison.
func NewPredictionResult(date time.Time, p float64) PredictionResult {
	return PredictionResult{Date: date, Probability: p, Label: p > DecisionThreshold}
}

// LabelInt returns the label as 0/1.
func (p PredictionResult) LabelInt() int {
	if p.Label {
		return 1
	}
	return 0
}

// PredictionRecord is a stored prediction with its provenance.
type PredictionRecord struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Date        time.Time         `json:"date"`
	Probability float64           `json:"probability"`
	Label       bool              `json:"label"`
	ArtifactID  string            `json:"artifact_id"`
	Features    []IndicatorRecord `json:"features,omitempty"`
}
