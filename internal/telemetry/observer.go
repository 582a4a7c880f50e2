package telemetry

import (
	"context"
	"time"

	bridgemcp "github.com/bobmcallan/openapi-mcp-bridge/internal/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ToolObserver records invocations into OpenTelemetry.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"bridge.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"bridge.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		latency:     latency,
	}, nil
}

// ObserveInvoke records one invocation. The span is back-dated to cover
// the invocation and parented on ctx.
func (o *ToolObserver) ObserveInvoke(ctx context.Context, observation bridgemcp.Observation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.Tool),
		attribute.String("http_method", observation.Method),
		attribute.Bool("success", observation.Success),
	}
	if observation.Status > 0 {
		attrs = append(attrs, attribute.Int("http_status", observation.Status))
	}
	if !observation.Success {
		attrs = append(attrs, attribute.String("error_code", observation.Code.String()))
	}

	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, observation.Duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(ctx, "tool.invoke",
		trace.WithTimestamp(end.Add(-observation.Duration)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if !observation.Success {
		span.SetStatus(codes.Error, observation.Code.String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

var _ bridgemcp.Observer = (*ToolObserver)(nil)
