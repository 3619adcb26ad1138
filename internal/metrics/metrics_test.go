package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := NewQueueMetrics()

	m.Scheduled("a")
	m.Scheduled("a")
	m.Leased("a")
	m.LeaseConflict()
	m.Acked(1)
	m.Acked(0)
	m.Delivered("webhook", ResultFailed)
	m.Dispatched(3, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ScheduledTotal.WithLabelValues("a")); got != 2 {
		t.Fatalf("expected 2 scheduled, got %v", got)
	}
	if got := testutil.ToFloat64(m.LeaseConflicts); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.AckTotal.WithLabelValues(ResultStale)); got != 1 {
		t.Fatalf("expected 1 stale ack, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveryTotal.WithLabelValues("webhook", ResultFailed)); got != 1 {
		t.Fatalf("expected 1 failed delivery, got %v", got)
	}
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *QueueMetrics

	m.Scheduled("a")
	m.Leased("a")
	m.LeaseConflict()
	m.Acked(1)
	m.Delivered("webhook", ResultOK)
	m.Dispatched(1, time.Second)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewQueueMetrics()
	m.Leased("a")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `delayq_messages_leased_total{kind="a"} 1`) {
		t.Fatalf("expected leased counter in output, got %s", rec.Body.String())
	}
}
