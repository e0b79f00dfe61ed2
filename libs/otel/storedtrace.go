package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is a W3C trace context persisted next to deferred work, such
// as an outbox row, so the work can be traced back to the request that
// queued it.
type StoredTrace struct {
	Traceparent string
	Tracestate  string
}

// CaptureTrace serializes the span in ctx with the global propagator. The
// result is empty when ctx carries no valid span.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{
		Traceparent: carrier.Get("traceparent"),
		Tracestate:  carrier.Get("tracestate"),
	}
}

func (s StoredTrace) Empty() bool { return s.Traceparent == "" }

// Resume returns ctx with the stored span as remote parent. An empty or
// unparsable trace leaves ctx unchanged.
func (s StoredTrace) Resume(ctx context.Context) context.Context {
	if s.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": s.Traceparent}
	if s.Tracestate != "" {
		carrier["tracestate"] = s.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
