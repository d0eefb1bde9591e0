// Package telemetry holds the OpenTelemetry tracer and instruments used by
// the circulation core. Without a configured SDK the global providers are
// no-ops, so instrumented code runs unchanged in tests and the CLI.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"libtrack/pkg/apperr"
)

const instrumentationName = "libtrack"

type Telemetry struct {
	tracer     trace.Tracer
	operations metric.Int64Counter
	sweepItems metric.Int64Counter
}

func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)

	operations, err := meter.Int64Counter("libtrack.circulation.operations",
		metric.WithDescription("Circulation operations by name and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}
	sweepItems, err := meter.Int64Counter("libtrack.sweep.items",
		metric.WithDescription("Borrowings handled by the overdue sweep by result"))
	if err != nil {
		return nil, fmt.Errorf("create sweep counter: %w", err)
	}

	return &Telemetry{
		tracer:     tp.Tracer(instrumentationName),
		operations: operations,
		sweepItems: sweepItems,
	}, nil
}

// Global uses whatever providers were registered with the otel package.
func Global() (*Telemetry, error) {
	return New(otel.GetTracerProvider(), otel.GetMeterProvider())
}

func Noop() *Telemetry {
	t, _ := New(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return t
}

func (t *Telemetry) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// End closes span and counts the operation under the outcome of err.
func (t *Telemetry) End(ctx context.Context, span trace.Span, op string, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("libtrack.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	t.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (t *Telemetry) CountSweep(ctx context.Context, result string, n int) {
	if n <= 0 {
		return
	}
	t.sweepItems.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
}

// Outcome is "ok" for nil and the error kind otherwise.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
