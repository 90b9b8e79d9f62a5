package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	headerTraceparent = "traceparent"
	headerTracestate  = "tracestate"
)

// TraceCarrier is a W3C trace context detached from its request, kept on a
// stored row so work picked up later by another goroutine or process joins
// the originating trace.
type TraceCarrier struct {
	Parent string
	State  string
}

// CaptureTrace serialises the span context in ctx with the global propagator.
// It is zero when ctx carries no sampled span.
func CaptureTrace(ctx context.Context) TraceCarrier {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return TraceCarrier{Parent: m[headerTraceparent], State: m[headerTracestate]}
}

func (c TraceCarrier) IsZero() bool {
	return c.Parent == ""
}

// Into returns ctx with the captured span context as its remote parent.
// A carrier without traceparent leaves ctx unchanged; tracestate alone is
// meaningless.
func (c TraceCarrier) Into(ctx context.Context) context.Context {
	if c.IsZero() {
		return ctx
	}
	m := propagation.MapCarrier{headerTraceparent: c.Parent}
	if c.State != "" {
		m[headerTracestate] = c.State
	}
	return otel.GetTextMapPropagator().Extract(ctx, m)
}
