package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCounters(t *testing.T) {
	m := NewMetrics(testLogger())
	m.Fetch("search", "ok")
	m.Fetch("search", "ok")
	m.Fetch("detail", "blocked")
	m.Reconciled("rice", "CREATE")
	m.PersistFailed("rice")

	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("search", "ok")); got != 2 {
		t.Errorf("search ok fetches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("detail", "blocked")); got != 1 {
		t.Errorf("detail blocked fetches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReconcileActions.WithLabelValues("rice", "CREATE")); got != 1 {
		t.Errorf("rice CREATE = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PersistenceFailure.WithLabelValues("rice")); got != 1 {
		t.Errorf("rice persistence failures = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Fetch("search", "ok")
	m.Extraction("mask", "error")
	m.Reconciled("mask", "REUSE")
	m.Dropped("mask", "primary_quantity")
	m.PersistFailed("mask")
	m.RunFinished("mask", "success", time.Second)
}

func TestServeHTTP(t *testing.T) {
	m := NewMetrics(testLogger())
	m.RunFinished("toilet_paper", "success", 3*time.Second)
	m.Extraction("toilet_paper", "ok")

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"unitscout_run_duration_seconds_count",
		`unitscout_extractions_total{category="toilet_paper",outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
