package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestNilMetrics_methodsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
	m.ObserveDocumentLoad("file", "ok")
	m.ObserveDocumentSave(true, time.Millisecond)
	m.IncHandlerFault("map-clicked")
	m.SessionOpened()
	m.SessionClosed()
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.ObserveDocumentLoad("share", "DocumentInvalid")
	m.ObserveDocumentSave(true, 3*time.Millisecond)
	m.IncHandlerFault("file-loaded")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		"streetsketch_http_requests_total{method=\"GET\",path=\"/readyz\",status=\"200\"} 1",
		"streetsketch_document_loads_total{outcome=\"DocumentInvalid\",source=\"share\"} 1",
		"streetsketch_document_saves_total{outcome=\"ok\"} 1",
		"streetsketch_document_save_duration_seconds_count 1",
		"streetsketch_event_handler_faults_total{topic=\"file-loaded\"} 1",
		"streetsketch_sessions_active 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output; body=%s", want, body)
		}
	}
}
