package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"narrator/internal/config"
	"narrator/internal/logging"
)

func TestSetupServesPrometheusMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Metrics = true

	p, err := Setup(context.Background(), &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.Handler == nil {
		t.Fatal("expected metrics handler")
	}
	p.Metrics.RecordMerge(context.Background(), "article", "ok", 0)

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "narrator_merge_total") {
		t.Fatalf("expected merge counter in exposition, got:\n%s", body)
	}
}

func TestSetupWithoutMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Metrics = false

	p, err := Setup(context.Background(), &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.Handler != nil {
		t.Fatal("expected no metrics handler when disabled")
	}
	if p.Metrics == nil {
		t.Fatal("expected no-op metrics instance")
	}
}
