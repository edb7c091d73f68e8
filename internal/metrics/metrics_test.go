package metrics_test

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/BRO3886/go-formpdf/internal/metrics"
)

// scrape returns the exposition body for reg.
func scrape(t *testing.T, reg *metrics.Registry) string {
	t.Helper()
	w := httptest.NewRecorder()
	reg.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}

func TestCounters(t *testing.T) {
	reg := metrics.New()
	reg.IncSuccess()
	reg.IncSuccess()
	reg.IncTimeout()
	reg.IncFailed()

	body := scrape(t, reg)
	if !strings.Contains(body, `formpdf_renders_total{outcome="success"} 2`) {
		t.Errorf("expected success=2 in output, got:\n%s", body)
	}
	if !strings.Contains(body, `formpdf_renders_total{outcome="timeout"} 1`) {
		t.Errorf("expected timeout=1 in output, got:\n%s", body)
	}
	if !strings.Contains(body, `formpdf_renders_total{outcome="failed"} 1`) {
		t.Errorf("expected failed=1 in output, got:\n%s", body)
	}
}

func TestOutcomeSeriesExportBeforeFirstUse(t *testing.T) {
	body := scrape(t, metrics.New())
	for _, outcome := range []string{"success", "timeout", "failed"} {
		want := `formpdf_renders_total{outcome="` + outcome + `"} 0`
		if !strings.Contains(body, want) {
			t.Errorf("expected %s, got:\n%s", want, body)
		}
	}
}

func TestInFlight(t *testing.T) {
	reg := metrics.New()
	reg.IncInFlight()
	reg.IncInFlight()
	reg.DecInFlight()

	body := scrape(t, reg)
	if !strings.Contains(body, "formpdf_renders_in_flight 1") {
		t.Errorf("expected in_flight=1, got:\n%s", body)
	}
}

func TestHistogramBucketPlacement(t *testing.T) {
	reg := metrics.New()
	reg.ObserveDuration(0.05) // ≤0.1
	reg.ObserveDuration(0.2)  // ≤0.25
	reg.ObserveDuration(0.6)  // ≤1
	reg.ObserveDuration(3)    // ≤5

	body := scrape(t, reg)
	if !strings.Contains(body, `formpdf_render_duration_seconds_bucket{le="0.1"} 1`) {
		t.Errorf("expected bucket 0.1=1, got:\n%s", body)
	}
	if !strings.Contains(body, `formpdf_render_duration_seconds_bucket{le="0.25"} 2`) {
		t.Errorf("expected bucket 0.25=2, got:\n%s", body)
	}
	if !strings.Contains(body, `formpdf_render_duration_seconds_bucket{le="1"} 3`) {
		t.Errorf("expected bucket 1=3, got:\n%s", body)
	}
	if !strings.Contains(body, `formpdf_render_duration_seconds_bucket{le="+Inf"} 4`) {
		t.Errorf("expected bucket +Inf=4, got:\n%s", body)
	}
	if !strings.Contains(body, "formpdf_render_duration_seconds_count 4") {
		t.Errorf("expected count=4, got:\n%s", body)
	}
}

func TestAttempts(t *testing.T) {
	reg := metrics.New()
	reg.ObserveAttempt("library", "pdf", "failed")
	reg.ObserveAttempt("library", "pdf", "failed")
	reg.ObserveAttempt("soffice", "pdf:writer_pdf_export", "success")

	body := scrape(t, reg)
	if !strings.Contains(body, `formpdf_conversion_attempts_total{filter="pdf",outcome="failed",strategy="library"} 2`) {
		t.Errorf("expected library attempts=2, got:\n%s", body)
	}
	if !strings.Contains(body, `formpdf_conversion_attempts_total{filter="pdf:writer_pdf_export",outcome="success",strategy="soffice"} 1`) {
		t.Errorf("expected soffice attempt=1, got:\n%s", body)
	}
}

func TestWarmupReady(t *testing.T) {
	reg := metrics.New()
	reg.SetWarmupReady(true)
	if body := scrape(t, reg); !strings.Contains(body, "formpdf_warmup_ready 1") {
		t.Errorf("expected warmup_ready=1, got:\n%s", body)
	}

	reg.SetWarmupReady(false)
	if body := scrape(t, reg); !strings.Contains(body, "formpdf_warmup_ready 0") {
		t.Errorf("expected warmup_ready=0, got:\n%s", body)
	}
}

func TestContentType(t *testing.T) {
	reg := metrics.New()
	w := httptest.NewRecorder()
	reg.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	ct := w.Header().Get("Content-Type")
	if !strings.Contains(ct, "text/plain") || !strings.Contains(ct, "version=0.0.4") {
		t.Errorf("unexpected Content-Type: %q", ct)
	}
}

func TestConcurrentRace(t *testing.T) {
	reg := metrics.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			reg.IncInFlight()
			reg.ObserveDuration(float64(n) / 100)
			reg.IncSuccess()
			reg.DecInFlight()
		}(i)
	}
	wg.Wait()

	body := scrape(t, reg)
	if !strings.Contains(body, `formpdf_renders_total{outcome="success"} 50`) {
		t.Errorf("expected 50 successes after concurrent run, got:\n%s", body)
	}
	if !strings.Contains(body, "formpdf_renders_in_flight 0") {
		t.Errorf("expected in_flight=0 after concurrent run, got:\n%s", body)
	}
}
