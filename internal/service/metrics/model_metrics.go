package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ModelValidation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "recession",
			Subsystem: "model",
			Name:      "validation",
			Help:      "Held-out loss and accuracy of the serving model",
		},
		[]string{"stat"},
	)

	ModelActivated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recession",
			Subsystem: "model",
			Name:      "activated_timestamp_seconds",
			Help:      "Unix time the serving model was activated",
		},
	)

	ModelInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "recession",
			Subsystem: "model",
			Name:      "info",
			Help:      "Always 1 for the serving artifact",
		},
		[]string{"artifact_id", "window_length"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ModelValidation, ModelActivated, ModelInfo)
	})
}
