package events

import (
	"github.com/prometheus/client_golang/prometheus"

	metricspkg "github.com/drblury/omstasher/internal/runtime/metrics"
)

const metricsSubsystem = "events"

// Metrics holds the broadcaster's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	publishedTotal prometheus.Counter
	deliveredTotal prometheus.Counter
	droppedTotal   prometheus.Counter
	subscribers    prometheus.Gauge
	queueDepth     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.publishedTotal, err = metricspkg.Register(registerer, metricspkg.NewCounter(metricsSubsystem,
		"published_total", "Total number of events accepted from producers")); err != nil {
		return nil, err
	}
	if m.deliveredTotal, err = metricspkg.Register(registerer, metricspkg.NewCounter(metricsSubsystem,
		"delivered_total", "Total number of event copies pushed to subscriber backlogs")); err != nil {
		return nil, err
	}
	if m.droppedTotal, err = metricspkg.Register(registerer, metricspkg.NewCounter(metricsSubsystem,
		"dropped_total", "Total number of events dropped from lagging subscriber backlogs")); err != nil {
		return nil, err
	}
	if m.subscribers, err = metricspkg.Register(registerer, metricspkg.NewGauge(metricsSubsystem,
		"subscribers", "Current number of subscribers")); err != nil {
		return nil, err
	}
	if m.queueDepth, err = metricspkg.Register(registerer, metricspkg.NewGauge(metricsSubsystem,
		"queue_depth", "Number of events waiting for the dispatcher")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) published(depth int) {
	if m == nil {
		return
	}
	m.publishedTotal.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) dispatched(delivered, dropped, depth int) {
	if m == nil {
		return
	}
	m.deliveredTotal.Add(float64(delivered))
	m.droppedTotal.Add(float64(dropped))
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) setSubscribers(count int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(count))
}
