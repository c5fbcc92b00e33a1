package service

import (
	"context"
	"time"

	"RecessionLens/internal/domain/models"
)

// Classifier maps one scaled window of shape (L, InputSize) to the probability
// of the recession class.
type Classifier interface {
	Predict(window [][]float64) (float64, error)
	InputSize() int
}

// Forecaster predicts the period following the supplied records.
type Forecaster interface {
	Forecast(ctx context.Context, records []models.IndicatorRecord) (*models.PredictionRecord, error)
}

// PredictionHistory lists stored predictions, newest first.
type PredictionHistory interface {
	History(ctx context.Context, from, to time.Time, limit int) ([]*models.PredictionRecord, error)
}

// TrainScheduler enqueues a retraining run and returns its id.
type TrainScheduler interface {
	ScheduleTrain(ctx context.Context) (string, error)
}
