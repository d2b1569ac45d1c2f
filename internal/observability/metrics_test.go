package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitMetrics_registersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.TransitionsTotal.WithLabelValues("start", "running").Inc()
	m.EventsEnqueuedTotal.WithLabelValues("pause").Inc()
	m.SweptPartitionsTotal.Add(3)
	m.StaleWorkflows.Set(2)

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("start", "running")); got != 1 {
		t.Errorf("transitions counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SweptPartitionsTotal); got != 3 {
		t.Errorf("swept partitions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.StaleWorkflows); got != 2 {
		t.Errorf("stale gauge = %v, want 2", got)
	}
}

func TestInitMetrics_duplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	InitMetrics(reg)
}
