// internal/telemetry/telemetry.go
// Package telemetry records otel metrics and spans for worker calls, spawns
// and cache refilters.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwiater/codeintel/internal/rpc"
)

const instrumentationName = "github.com/mwiater/codeintel"

// Exporter names accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// ErrUnknownExporter is returned by Setup for an unsupported exporter name.
var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// Setup installs global trace and meter providers that export to w. The
// returned function flushes and stops them.
func Setup(exporter, version string, w io.Writer) (func(context.Context) error, error) {
	switch exporter {
	case "", ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, exporter)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "codeintel"),
		attribute.String("service.version", version),
	)

	spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Recorder holds the instruments. A nil *Recorder records nothing.
type Recorder struct {
	tracer trace.Tracer

	callLatency  metric.Float64Histogram
	callTotal    metric.Int64Counter
	spawns       metric.Int64Counter
	refilters    metric.Int64Counter
	candidates   metric.Int64Histogram
	staleReplies metric.Int64Counter
}

// Global returns a Recorder bound to the global otel providers.
func Global() *Recorder {
	r, err := New(otel.GetMeterProvider(), otel.GetTracerProvider())
	if err != nil {
		return nil
	}
	return r
}

// New creates the instruments on the given providers.
func New(mp metric.MeterProvider, tp trace.TracerProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &Recorder{tracer: tp.Tracer(instrumentationName)}

	var err error
	if r.callLatency, err = meter.Float64Histogram(
		"codeintel_call_duration_seconds",
		metric.WithDescription("Duration of worker calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if r.callTotal, err = meter.Int64Counter(
		"codeintel_call_total",
		metric.WithDescription("Worker calls by method and outcome"),
	); err != nil {
		return nil, err
	}
	if r.spawns, err = meter.Int64Counter(
		"codeintel_worker_spawns_total",
		metric.WithDescription("Worker spawn attempts"),
	); err != nil {
		return nil, err
	}
	if r.refilters, err = meter.Int64Counter(
		"codeintel_refilter_total",
		metric.WithDescription("Candidate index rebuilds by path"),
	); err != nil {
		return nil, err
	}
	if r.candidates, err = meter.Int64Histogram(
		"codeintel_candidates",
		metric.WithDescription("Candidates visible after a refilter"),
	); err != nil {
		return nil, err
	}
	if r.staleReplies, err = meter.Int64Counter(
		"codeintel_stale_replies_total",
		metric.WithDescription("Query replies discarded by the generation check"),
	); err != nil {
		return nil, err
	}
	return r, nil
}

// StartCall opens a span for a worker call. The returned function ends the
// span and records its latency and outcome.
func (r *Recorder) StartCall(ctx context.Context, method string) (context.Context, func(error)) {
	if r == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "worker."+method,
		trace.WithAttributes(attribute.String("codeintel.method", method)),
	)
	return ctx, func(err error) {
		outcome := outcomeOf(err)
		span.SetAttributes(attribute.String("codeintel.outcome", outcome))
		if err != nil {
			span.RecordError(err)
		}
		span.End()

		attrs := metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		)
		r.callLatency.Record(context.Background(), time.Since(start).Seconds(), attrs)
		r.callTotal.Add(context.Background(), 1, attrs)
	}
}

// Spawn records one spawn attempt.
func (r *Recorder) Spawn(ctx context.Context, session string, ok bool) {
	if r == nil {
		return
	}
	r.spawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", ok)))
	trace.SpanFromContext(ctx).AddEvent("worker.spawn", trace.WithAttributes(
		attribute.String("codeintel.session", session),
		attribute.Bool("codeintel.success", ok),
	))
}

// CancelSent records a $/cancelRequest as an event on the span of the call
// it stops.
func (r *Recorder) CancelSent(ctx context.Context, id int64) {
	if r == nil || ctx == nil {
		return
	}
	trace.SpanFromContext(ctx).AddEvent("worker.cancelRequest", trace.WithAttributes(
		attribute.Int64("codeintel.request_id", id),
	))
}

// Refilter records one candidate index rebuild. path is "reset", "fast" or
// "full".
func (r *Recorder) Refilter(ctx context.Context, path string, visible int) {
	if r == nil {
		return
	}
	r.refilters.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
	r.candidates.Record(ctx, int64(visible))
}

// StaleReply records a reply dropped for an old generation.
func (r *Recorder) StaleReply(ctx context.Context) {
	if r == nil {
		return
	}
	r.staleReplies.Add(ctx, 1)
}

func outcomeOf(err error) string {
	var we *rpc.WorkerError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rpc.ErrCancelled):
		return "cancelled"
	case errors.Is(err, rpc.ErrDisconnected):
		return "disconnected"
	case errors.Is(err, rpc.ErrClosed):
		return "closed"
	case errors.Is(err, rpc.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, rpc.ErrProtocol):
		return "protocol"
	case errors.As(err, &we):
		return "worker_error"
	default:
		return "error"
	}
}
