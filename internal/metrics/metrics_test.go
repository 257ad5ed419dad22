package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Transition("reserve", "ok")
		m.SweepDone(1, 1)
		m.ImportRow(true)
		m.WaitlistEntry("promoted")
	})
}

func TestCounters(t *testing.T) {
	m := New("classgo", prometheus.NewRegistry())

	m.Transition("reserve", "ok")
	m.Transition("reserve", "ok")
	m.SweepDone(3, 1)
	m.ImportRow(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("reserve", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepReleased))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importRows.WithLabelValues("invalid")))
}
