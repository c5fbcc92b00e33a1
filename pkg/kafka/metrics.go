package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	publishedTotal *prometheus.CounterVec
	publishedBytes *prometheus.CounterVec
	publishSeconds *prometheus.HistogramVec

	handledTotal  *prometheus.CounterVec
	handleSeconds *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec
)

func registerMetrics() {
	metricsOnce.Do(func() {
		publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recession",
			Subsystem: "kafka",
			Name:      "published_messages_total",
			Help:      "Messages written to Kafka by result.",
		}, []string{"topic", "result"})
		publishedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recession",
			Subsystem: "kafka",
			Name:      "published_bytes_total",
			Help:      "Uncompressed payload bytes written to Kafka.",
		}, []string{"topic", "compression"})
		publishSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recession",
			Subsystem: "kafka",
			Name:      "publish_seconds",
			Help:      "Time spent in one producer write.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"})

		handledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recession",
			Subsystem: "kafka",
			Name:      "handled_messages_total",
			Help:      "Consumed messages by outcome (ok, dlq, failed).",
		}, []string{"topic", "outcome"})
		handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recession",
			Subsystem: "kafka",
			Name:      "handle_seconds",
			Help:      "Time to handle one message including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"})
		queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "recession",
			Subsystem: "kafka",
			Name:      "worker_queue_depth",
			Help:      "Fetched messages waiting for a worker.",
		}, []string{"topic"})
	})
}

func observePublish(topic, compression string, count, bytes int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	publishedTotal.WithLabelValues(topic, result).Add(float64(count))
	if err == nil {
		publishedBytes.WithLabelValues(topic, compression).Add(float64(bytes))
	}
	publishSeconds.WithLabelValues(topic).Observe(dur.Seconds())
}
