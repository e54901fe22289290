package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionLifecycleMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionCreated("sales")
	m.RecordSessionCreated("default")
	m.RecordSessionClosed("downstream_closed", 12.5)

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCreated.WithLabelValues("sales")); got != 1 {
		t.Errorf("Expected 1 sales session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsClosed.WithLabelValues("downstream_closed")); got != 1 {
		t.Errorf("Expected 1 closed session, got %v", got)
	}
}

func TestUpstreamConnectMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordUpstreamConnect(0.2, nil)
	m.RecordUpstreamConnect(1.5, errors.New("refused"))

	if got := testutil.ToFloat64(m.UpstreamConnectFailures); got != 1 {
		t.Errorf("Expected 1 failure, got %v", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Registering twice on separate registries must not panic
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RecordMarkSent()
	if got := testutil.ToFloat64(b.MarksSent); got != 0 {
		t.Errorf("Expected registries to be independent, got %v", got)
	}
}
