package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBackend("log_chunk", "ok", 20*time.Millisecond)
	m.CountView("poll", "inline_error")
	m.CountView("poll", "inline_error")
	m.AddLogBytes(128)
	m.AddLogBytes(0)

	if got := testutil.ToFloat64(m.viewResults.WithLabelValues("poll", "inline_error")); got != 2 {
		t.Errorf("view results = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.logBytes); got != 128 {
		t.Errorf("log bytes = %v, want 128", got)
	}
	if n := testutil.CollectAndCount(m.backendDuration); n != 1 {
		t.Errorf("backend series = %d, want 1", n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveBackend("x", "ok", time.Second)
	m.CountView("x", "ok")
	m.AddLogBytes(1)
}
