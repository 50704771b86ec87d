package observability

import (
	"context"
	"testing"
	"time"
)

func TestInitTracer_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TraceOptions{ServiceName: "roomplane-orchestrator"})
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestInitTracer_LazyConnect(t *testing.T) {
	// The gRPC exporter dials lazily, so an unreachable collector does not fail init.
	shutdown, err := InitTracer(context.Background(), TraceOptions{
		ServiceName: "roomplane-orchestrator",
		Version:     "test",
		Endpoint:    "localhost:4317",
		SampleRatio: 0.5,
	})
	if err != nil {
		t.Logf("InitTracer returned error (may be expected in test environment): %v", err)
		return
	}
	if shutdown == nil {
		t.Fatal("expected shutdown function to be non-nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestInitTracer_DefaultsServiceName(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TraceOptions{Endpoint: "invalid-endpoint:9999", SampleRatio: 7})
	if err != nil {
		t.Logf("InitTracer failed in this environment: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
