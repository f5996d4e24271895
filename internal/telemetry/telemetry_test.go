package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mwiater/codeintel/internal/rpc"
)

func TestRecorderEmitsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	r, err := New(mp, tp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, end := r.StartCall(context.Background(), "clang/complete")
	end(nil)
	_, end = r.StartCall(context.Background(), "clang/diagnose")
	end(rpc.ErrDisconnected)
	r.Spawn(context.Background(), "s1", true)
	r.Refilter(context.Background(), "fast", 12)
	r.StaleReply(context.Background())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{
		"codeintel_call_duration_seconds",
		"codeintel_call_total",
		"codeintel_worker_spawns_total",
		"codeintel_refilter_total",
		"codeintel_candidates",
		"codeintel_stale_replies_total",
	} {
		if !names[want] {
			t.Fatalf("metric %s not collected; got %v", want, names)
		}
	}

	ended := spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "worker.clang/complete" {
		t.Fatalf("span name = %q", ended[0].Name())
	}
}

func TestCancelAndSpawnNestUnderCallSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	r, err := New(sdkmetric.NewMeterProvider(), tp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, end := r.StartCall(context.Background(), "clang/complete")
	r.Spawn(ctx, "s1", true)
	r.CancelSent(ctx, 7)
	end(rpc.ErrCancelled)

	ended := spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	var names []string
	for _, ev := range ended[0].Events() {
		names = append(names, ev.Name)
	}
	if len(names) < 2 || names[0] != "worker.spawn" || names[1] != "worker.cancelRequest" {
		t.Fatalf("span events = %v", names)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	ctx, end := r.StartCall(context.Background(), "clang/complete")
	if ctx == nil {
		t.Fatalf("nil recorder should return the caller's context")
	}
	end(errors.New("boom"))
	r.Spawn(context.Background(), "s", false)
	r.Refilter(context.Background(), "full", 0)
	r.StaleReply(context.Background())
	r.CancelSent(context.Background(), 1)
}

func TestOutcomeOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{rpc.Cancelled(context.Canceled), "cancelled"},
		{fmt.Errorf("call: %w", rpc.ErrClosed), "closed"},
		{rpc.ErrNotSupported, "not_supported"},
		{rpc.Protocolf("bad"), "protocol"},
		{&rpc.WorkerError{Code: 1, Message: "x"}, "worker_error"},
		{errors.New("other"), "error"},
	}
	for _, tc := range cases {
		if got := outcomeOf(tc.err); got != tc.want {
			t.Fatalf("outcomeOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestSetup(t *testing.T) {
	shutdown, err := Setup(ExporterNone, "test", nil)
	if err != nil {
		t.Fatalf("Setup none: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown none: %v", err)
	}
	if _, err := Setup("zipkin", "test", nil); !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("expected ErrUnknownExporter, got %v", err)
	}

	var buf bytes.Buffer
	shutdown, err = Setup(ExporterStdout, "test", &buf)
	if err != nil {
		t.Fatalf("Setup stdout: %v", err)
	}
	_, end := Global().StartCall(context.Background(), "clang/getIndexKey")
	end(nil)
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown stdout: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("clang/getIndexKey")) {
		t.Fatalf("expected exported span in output")
	}
}
