package surge

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/albertbausili/surge/pkg/exchange"
)

// TracingConfig defines the configuration options for the OpenTelemetry
// tracing processor.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "surge")
	TracerName string
	// Propagator is the propagation format (default: TraceContext)
	Propagator propagation.TextMapPropagator
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "surge",
		Propagator: propagation.TraceContext{},
	}
}

const attrSpan = "surge.span"

// Tracing returns a processor that opens a span per exchange and propagates
// trace context on the outgoing request.
func Tracing() exchange.Processor {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a tracing processor with custom configuration.
func TracingWithConfig(config TracingConfig) exchange.Processor {
	if config.TracerName == "" {
		config.TracerName = "surge"
	}
	if config.Propagator == nil {
		config.Propagator = propagation.TraceContext{}
	}
	return &tracingProcessor{
		tracer:     otel.Tracer(config.TracerName),
		propagator: config.Propagator,
	}
}

type tracingProcessor struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func (t *tracingProcessor) ProcessRequest(req *exchange.Request, ctx *exchange.Context) error {
	spanCtx, span := t.tracer.Start(context.Background(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.Path),
		),
	)
	if host, ok := ctx.Get(exchange.AttrTargetHost).(exchange.Host); ok {
		span.SetAttributes(attribute.String("net.peer.name", host.String()))
	}
	t.propagator.Inject(spanCtx, requestCarrier{req})
	ctx.Set(attrSpan, span)
	return nil
}

func (t *tracingProcessor) ProcessResponse(resp *exchange.Response, ctx *exchange.Context) error {
	span, ok := ctx.Get(attrSpan).(trace.Span)
	if !ok {
		return nil
	}
	// Interim responses keep the span open.
	if resp.Status < 200 {
		return nil
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	if resp.Status >= 400 {
		span.SetStatus(codes.Error, resp.Reason)
	}
	span.End()
	ctx.Delete(attrSpan)
	return nil
}

// requestCarrier adapts request headers to the propagation carrier.
type requestCarrier struct {
	req *exchange.Request
}

func (c requestCarrier) Get(key string) string { return c.req.Header(key) }

func (c requestCarrier) Set(key, value string) { c.req.SetHeader(key, value) }

func (c requestCarrier) Keys() []string {
	keys := make([]string, 0, len(c.req.Headers))
	for _, h := range c.req.Headers {
		keys = append(keys, h[0])
	}
	return keys
}
