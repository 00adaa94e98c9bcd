package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lox/wxetl/internal/metrics"
)

func TestInstrumentedTransportCountsBySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(nil)
	before := testutil.ToFloat64(metrics.UpstreamCallsTotal.WithLabelValues("test_source", "404"))

	req, _ := http.NewRequestWithContext(WithSource(t.Context(), "test_source"), http.MethodGet, srv.URL+"/missing", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	after := testutil.ToFloat64(metrics.UpstreamCallsTotal.WithLabelValues("test_source", "404"))
	if after-before != 1 {
		t.Errorf("404 count delta = %v, want 1", after-before)
	}
}

func TestSourceDefaultsToUnknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := sourceFrom(req.Context()); got != "unknown" {
		t.Errorf("sourceFrom = %q, want unknown", got)
	}
}
