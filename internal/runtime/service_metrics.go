package runtime

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/omstasher/internal/runtime/metrics"
)

const (
	outcomeHandled    = "handled"
	outcomeSuppressed = "suppressed"
	outcomeLagged     = "lagged"
	outcomeFailed     = "failed"
)

// Metrics counts the events seen by service runtime loops.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the runtime collectors on registerer, reusing them
// when already registered.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	events, err := metrics.Register(registerer, metrics.NewCounterVec("runtime", "events_total",
		"Events seen by service runtimes, by service id and outcome.", []string{"service", "outcome"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{events: events}, nil
}

func (m *Metrics) observe(serviceID uint8, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(strconv.Itoa(int(serviceID)), outcome).Inc()
}
