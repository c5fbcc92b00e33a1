package models

import "time"

// Requests for the prediction HTTP endpoints. Defined in domain for consistency and reuse.

// FeatureRow is one month of indicators in an inference request.
type FeatureRow struct {
	Date     string   `json:"date"`
	CPI      *float64 `json:"cpi" validate:"required"`
	Bond     *float64 `json:"bond" validate:"required"`
	M3       *float64 `json:"m3" validate:"required"`
	Interest *float64 `json:"interest" validate:"required"`
	WTI      *float64 `json:"wti" validate:"required"`
}

type PredictRequest struct {
	Features []FeatureRow `json:"features" validate:"required,min=1,dive"`
}

type HistoryRequest struct {
	Limit int       `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	From  time.Time `query:"-" json:"-"`
	To    time.Time `query:"-" json:"-"`
}

// PredictionResponse is the body returned by the inference endpoint.
type PredictionResponse struct {
	Date        string  `json:"date"`
	Probability float64 `json:"probability"`
	Label       bool    `json:"label"`
	ArtifactID  string  `json:"artifact_id,omitempty"`
}
