// Copyright 2025 James Ross
package obs

import (
	"context"
	"testing"

	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMaybeInitTracing(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		expectNil bool
	}{
		{
			name: "tracing disabled",
			cfg: &config.Config{
				Observability: config.Observability{TracingEnabled: false},
			},
			expectNil: true,
		},
		{
			name: "tracing enabled with endpoint",
			cfg: &config.Config{
				Observability: config.Observability{
					TracingEnabled:  true,
					TracingEndpoint: "http://localhost:4318/v1/traces",
				},
			},
			expectNil: false,
		},
		{
			name: "tracing enabled without endpoint",
			cfg: &config.Config{
				Observability: config.Observability{TracingEnabled: true},
			},
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			otel.SetTracerProvider(trace.NewNoopTracerProvider())

			tp, err := MaybeInitTracing(tt.cfg)
			if err != nil {
				t.Fatalf("MaybeInitTracing() error = %v", err)
			}
			if tt.expectNil && tp != nil {
				t.Errorf("expected nil tracer provider, got %v", tp)
			}
			if !tt.expectNil && tp == nil {
				t.Errorf("expected non-nil tracer provider")
			}
			if tp != nil {
				tp.Shutdown(context.Background())
			}
		})
	}
}

func TestStartComputeCycleSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	ctx, span := StartComputeCycleSpan(context.Background(), "api-gateway")
	if span == nil || !span.IsRecording() {
		t.Fatal("expected recording span")
	}
	span.End()
	_ = ctx
}

func TestStartGateDecisionSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	_, span := StartGateDecisionSpan(context.Background(), "payment-service", "deploy-123")
	if span == nil || !span.IsRecording() {
		t.Fatal("expected recording span")
	}
	span.End()
}

func TestStartAlertDispatchSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	_, span := StartAlertDispatchSpan(context.Background(), "auth-service", "burn_rate_high")
	if span == nil || !span.IsRecording() {
		t.Fatal("expected recording span")
	}
	span.End()
}

func TestRecordErrorAndSuccess(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	RecordError(ctx, nil)
	RecordError(ctx, &testError{message: "boom"})
	SetSpanSuccess(ctx)

	RecordError(context.Background(), &testError{message: "no span"})
	SetSpanSuccess(context.Background())
}

func TestExtractInjectTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	carrier := InjectTraceContext(ctx)
	if len(carrier) == 0 {
		t.Error("expected non-empty carrier")
	}

	newCtx := ExtractTraceContext(context.Background(), carrier)
	if !trace.SpanContextFromContext(newCtx).IsValid() {
		t.Error("expected valid span context after extraction")
	}

	emptyCtx := ExtractTraceContext(context.Background(), map[string]string{})
	if trace.SpanContextFromContext(emptyCtx).IsValid() {
		t.Error("expected invalid span context with empty carrier")
	}
}

func TestGetTraceAndSpanID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	traceID, spanID := GetTraceAndSpanID(ctx)
	if len(traceID) != 32 {
		t.Errorf("expected trace id length 32, got %d", len(traceID))
	}
	if len(spanID) != 16 {
		t.Errorf("expected span id length 16, got %d", len(spanID))
	}

	emptyTraceID, emptySpanID := GetTraceAndSpanID(context.Background())
	if emptyTraceID != "" || emptySpanID != "" {
		t.Error("expected empty ids for context without span")
	}
}

func TestAddEventAndAttributes(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	AddEvent(ctx, "burn-rate-recomputed", attribute.String("service", "api-gateway"), attribute.Int("window_minutes", 60))
	AddEvent(ctx, "no-attrs-event")
	AddEvent(context.Background(), "no-span-event")

	AddSpanAttributes(ctx, attribute.String("risk", "danger"), attribute.Bool("blocked", true))
	AddSpanAttributes(context.Background(), attribute.String("no-span", "value"))
}

func TestTracerShutdown(t *testing.T) {
	if err := TracerShutdown(context.Background(), nil); err != nil {
		t.Errorf("expected no error for nil tracer provider, got %v", err)
	}
	tp := sdktrace.NewTracerProvider()
	if err := TracerShutdown(context.Background(), tp); err != nil {
		t.Errorf("unexpected error shutting down tracer provider: %v", err)
	}
}

func TestKeyValue(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected attribute.Type
	}{
		{"string", "value", attribute.STRING},
		{"int", 42, attribute.INT64},
		{"int64", int64(42), attribute.INT64},
		{"float64", 3.14, attribute.FLOAT64},
		{"bool", true, attribute.BOOL},
		{"other", struct{}{}, attribute.STRING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := KeyValue("key", tt.value)
			if kv.Value.Type() != tt.expected {
				t.Errorf("expected type %v, got %v", tt.expected, kv.Value.Type())
			}
		})
	}
}

func TestPropagationRoundTrip(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := otel.Tracer("test")
	originalCtx, originalSpan := tracer.Start(context.Background(), "original-span")
	defer originalSpan.End()

	originalTraceID, originalSpanID := GetTraceAndSpanID(originalCtx)
	carrier := InjectTraceContext(originalCtx)
	newCtx := ExtractTraceContext(context.Background(), carrier)

	newCtx, childSpan := tracer.Start(newCtx, "child-span")
	defer childSpan.End()

	childTraceID, childSpanID := GetTraceAndSpanID(newCtx)
	if childTraceID != originalTraceID {
		t.Errorf("expected same trace id, got original=%s child=%s", originalTraceID, childTraceID)
	}
	if childSpanID == originalSpanID {
		t.Error("expected different span ids for parent and child")
	}
}

type testError struct{ message string }

func (e *testError) Error() string { return e.message }
