package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Register(reg)

	m.Event("election.initiated")
	m.Event("election.initiated")
	m.Scan("election", "ok", time.Millisecond)
	m.Scan("election", "skipped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("election.initiated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("election", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("election", "skipped")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.scanDuration))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Register(prometheus.NewRegistry())
	m.Event("x")
	m.Scan("x", "ok", time.Second)

	unregistered := New(nil)
	unregistered.Event("x")
	unregistered.Scan("x", "error", time.Second)
}
