package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	trainLoss       *prometheus.GaugeVec
	epochs          prometheus.Counter
	lastProbability prometheus.Gauge
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder whose collectors are registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recession_predictions_total",
				Help: "Total number of predictions by predicted label",
			},
			[]string{"label"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recession_errors_total",
				Help: "Total number of errors encountered by kind",
			},
			[]string{"kind"},
		),
		trainLoss: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "recession_train_loss",
				Help: "Most recent binary cross-entropy per data split",
			},
			[]string{"split"},
		),
		epochs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recession_train_epochs_total",
				Help: "Total number of completed training epochs",
			},
		),
		lastProbability: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "recession_last_probability",
				Help: "Probability of the most recent prediction",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recession_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPrediction records one prediction and its probability.
func (r *Recorder) RecordPrediction(label bool, probability float64) {
	l := "0"
	if label {
		l = "1"
	}
	r.predictions.WithLabelValues(l).Inc()
	r.lastProbability.Set(probability)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordTrainLoss records the latest loss for split ("train" or "val").
func (r *Recorder) RecordTrainLoss(split string, loss float64) {
	r.trainLoss.WithLabelValues(split).Set(loss)
}

// RecordEpoch counts a completed epoch.
func (r *Recorder) RecordEpoch() {
	r.epochs.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordPrediction(bool, float64) {}
func (Nop) RecordError(string) {}
func (Nop) RecordTrainLoss(string, float64) {}
func (Nop) RecordEpoch() {}
func (Nop) RecordLatency(string, float64) {}
