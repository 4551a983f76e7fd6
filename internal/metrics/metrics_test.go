package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	IncCommandRun("scrape")
	IncCommandError("scrape")
	IncLookup("primary", "ok")
	AddRows("records", 2)
	ObserveCaptureDuration(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"xharvest_command_runs_total",
		"xharvest_command_errors_total",
		"xharvest_lookups_total",
		"xharvest_capture_duration_seconds",
		"xharvest_rows_written_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
