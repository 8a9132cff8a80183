package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpansWithServiceName(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(WorkerService, "go-worker-1", &buf)
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "worker.runTask")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"worker.runTask", WorkerService, "go-worker-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in exported spans, got %s", want, out)
		}
	}
}
