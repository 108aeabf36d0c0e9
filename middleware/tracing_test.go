package middleware

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracing_RequiresEndpoint(t *testing.T) {
	shutdown, err := InitTracing("pastirma", "")
	if err == nil {
		shutdown()
		t.Fatal("Expected error for empty endpoint")
	}
}

func TestInitTracing_TraceID(t *testing.T) {
	shutdown, err := InitTracing("pastirma", "http://localhost:14268/api/traces")
	if err != nil {
		t.Fatalf("Failed to init tracing: %v", err)
	}
	defer shutdown()

	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("Expected empty trace id outside a span, got %q", id)
	}

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if id := GetTraceID(ctx); len(id) != 32 {
		t.Errorf("Expected 32 char trace id, got %q", id)
	}
}
