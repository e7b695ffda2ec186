package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.ObserveRequest("/x", "ok", time.Second)
	m.ObserveAuth(true)
	m.ObserveCycle("status", time.Second, 3)
	m.SetEntities(10)
	m.ObservePress("shutdown", false)

	if m.Registry() != nil {
		t.Error("Registry() on nil Metrics != nil")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}

// scrape renders the registry in text format.
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest("/ugreen/v1/taskmgr/stat/get_all", "ok", 20*time.Millisecond)
	m.ObserveRequest("/ugreen/v1/taskmgr/stat/get_all", "ok", 30*time.Millisecond)
	m.ObserveRequest("/ugreen/v1/taskmgr/stat/get_all", "error", time.Second)
	m.ObserveAuth(true)
	m.ObserveAuth(false)
	m.ObserveCycle("status", 100*time.Millisecond, 4)
	m.SetEntities(42)

	out := scrape(t, m)
	want := []string{
		`nasbridge_api_requests_total{endpoint="/ugreen/v1/taskmgr/stat/get_all",outcome="ok"} 2`,
		`nasbridge_api_requests_total{endpoint="/ugreen/v1/taskmgr/stat/get_all",outcome="error"} 1`,
		`nasbridge_token_refresh_total{result="failure"} 1`,
		`nasbridge_token_refresh_total{result="success"} 1`,
		`nasbridge_poll_cycles_total{job="status"} 1`,
		`nasbridge_poll_null_values{job="status"} 4`,
		`nasbridge_entities 42`,
	}
	for _, line := range want {
		if !strings.Contains(out, line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObservePress("reboot", true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `nasbridge_button_presses_total{key="reboot",result="success"} 1`) {
		t.Errorf("metrics output missing press counter:\n%s", body)
	}
}
