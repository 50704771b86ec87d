package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestInstruments_AppearInMetricsOutput(t *testing.T) {
	ctx := context.Background()

	handler, shutdown, err := InitMetrics(ctx, "roomplane-test")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	ins, err := NewInstruments(otel.Meter("roomplane-test"))
	if err != nil {
		t.Fatalf("NewInstruments failed: %v", err)
	}

	ins.JobFired(ctx, "build")
	ins.JobFailed(ctx, "start")
	ins.PlaylistBuild(ctx, OutcomeOK)
	ins.StreamStart(ctx, OutcomeFailed)
	ins.Notification(ctx, "email", OutcomeOK)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	body := rr.Body.String()
	for _, name := range []string{
		"roomplane_jobs_fired",
		"roomplane_jobs_failed",
		"roomplane_playlist_builds",
		"roomplane_stream_starts",
		"roomplane_notifications",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected metric %q in output", name)
		}
	}
	if !strings.Contains(body, `phase="build"`) {
		t.Errorf("expected phase label in output, got:\n%s", body)
	}
}

func TestInstruments_NilIsSafe(t *testing.T) {
	var ins *Instruments
	ctx := context.Background()

	// None of these should panic
	ins.JobFired(ctx, "build")
	ins.JobFailed(ctx, "build")
	ins.PlaylistBuild(ctx, OutcomeOK)
	ins.StreamStart(ctx, OutcomeOK)
	ins.Notification(ctx, "whatsapp", OutcomeFailed)
}
