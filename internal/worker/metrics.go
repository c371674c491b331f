package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "singularity",
		Subsystem: "worker",
		Name:      "runs_total",
		Help:      "Worker runs by worker and result.",
	}, []string{"worker", "result"})

	metricRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "singularity",
		Subsystem: "worker",
		Name:      "run_duration_seconds",
		Help:      "Duration of worker runs.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"worker"})

	metricActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "singularity",
		Subsystem: "worker",
		Name:      "active",
		Help:      "Workers currently scheduled.",
	})

	// MetricGatewayLatency is updated by the gateway-latency worker.
	MetricGatewayLatency = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "singularity",
		Subsystem: "gateway",
		Name:      "latency_seconds",
		Help:      "Last measured gateway heartbeat latency.",
	})
)

const (
	resultOK    = "ok"
	resultError = "error"
	resultPanic = "panic"
)
