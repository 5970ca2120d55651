package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCall_Outcomes(t *testing.T) {
	ok := UpstreamCallsTotal.WithLabelValues("agent-service", "ask", "ok")
	bad := UpstreamCallsTotal.WithLabelValues("agent-service", "ask", "error")
	okBefore, badBefore := testutil.ToFloat64(ok), testutil.ToFloat64(bad)

	ObserveCall("agent-service", "ask", nil)
	ObserveCall("agent-service", "ask", errors.New("boom"))
	ObserveCall("agent-service", "ask", errors.New("boom"))

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Fatalf("ok delta = %v; want 1", got)
	}
	if got := testutil.ToFloat64(bad) - badBefore; got != 2 {
		t.Fatalf("error delta = %v; want 2", got)
	}
}

func TestMetricsRegistered(t *testing.T) {
	UpdatesTotal.WithLabelValues("accepted").Add(0)
	LateOutcomesTotal.WithLabelValues("unresolved").Add(0)
	DeliveriesTotal.WithLabelValues("sent").Add(0)
	RetryFlushTotal.WithLabelValues("replayed").Add(0)
	BackgroundTasksTotal.WithLabelValues("ok").Add(0)

	for _, name := range []string{
		"gateway_updates_total",
		"gateway_late_outcomes_total",
		"gateway_deliveries_total",
		"retry_enqueued_total",
		"retry_flush_items_total",
		"background_tasks_total",
		"upstream_calls_total",
	} {
		n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, name)
		if err != nil {
			t.Fatalf("gather %s: %v", name, err)
		}
		if n == 0 {
			t.Fatalf("%s not registered", name)
		}
	}
}
