package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterReusesExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := Register(reg, NewCounter("test", "hits_total", "hits"))
	require.NoError(t, err)
	first.Inc()

	second, err := Register(reg, NewCounter("test", "hits_total", "hits"))
	require.NoError(t, err)
	second.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(first))
}

func TestRegisterConflictingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := Register(reg, NewCounter("test", "conflict", "first help"))
	require.NoError(t, err)

	_, err = Register(reg, NewGauge("test", "conflict", "second help"))
	assert.Error(t, err)
}

func TestCounterVecLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	vec, err := Register(reg, NewCounterVec("test", "events_total", "events", []string{"outcome"}))
	require.NoError(t, err)

	vec.WithLabelValues("ok").Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(vec.WithLabelValues("ok")))
}
