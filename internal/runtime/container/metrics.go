package container

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/omstasher/internal/runtime/metrics"
)

const metricsSubsystem = "container"

type buildMetrics struct {
	builds   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newBuildMetrics(reg prometheus.Registerer) (*buildMetrics, error) {
	builds, err := metrics.Register(reg, metrics.NewCounterVec(metricsSubsystem, "builds_total",
		"Number of dependency builds by cell and result.", []string{"cell", "result"}))
	if err != nil {
		return nil, err
	}
	duration, err := metrics.Register(reg, metrics.NewHistogramVec(metricsSubsystem, "build_duration_seconds",
		"Time spent building a dependency.", prometheus.DefBuckets, []string{"cell"}))
	if err != nil {
		return nil, err
	}
	return &buildMetrics{builds: builds, duration: duration}, nil
}

func (m *buildMetrics) observe(cell string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.builds.WithLabelValues(cell, result).Inc()
	m.duration.WithLabelValues(cell).Observe(took.Seconds())
}
