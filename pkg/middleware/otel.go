package middleware

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tethys-org/store/pkg/dispatch"
)

// Default tracer name for store runtimes.
const defaultTracerName = "tethys-store"

// OTelConfig configures the OpenTelemetry dispatch interceptor.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "tethys-store").
	TracerName string

	// Filter determines which dispatches to trace. Return true to trace.
	// If nil, all dispatches are traced.
	Filter func(info dispatch.Info) bool

	// AttributeExtractor extracts custom attributes per dispatch.
	AttributeExtractor func(info dispatch.Info) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry dispatch interceptor.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithDispatchFilter sets a filter function for dispatches.
func WithDispatchFilter(filter func(info dispatch.Info) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(info dispatch.Info) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// otelInterceptor traces each dispatch as one span, opened at start and
// ended at settlement. Spans for in-flight dispatches are held in a table
// keyed by execution token.
type otelInterceptor struct {
	config OTelConfig

	mu    sync.Mutex
	spans map[uint64]trace.Span
}

// OpenTelemetry creates a dispatch interceptor that:
//   - Creates a span per dispatch named "dispatch <action>"
//   - Records store id, action, and token as attributes
//   - Sets error status on failed executions
//   - Marks cancelled executions with store.dispatch.cancelled
//
// The tracer uses the global OpenTelemetry tracer provider; configure it in
// main() before constructing stores.
func OpenTelemetry(opts ...OTelOption) dispatch.Interceptor {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return &otelInterceptor{
		config: config,
		spans:  make(map[uint64]trace.Span),
	}
}

func (o *otelInterceptor) DispatchStarted(info dispatch.Info) {
	if o.config.Filter != nil && !o.config.Filter(info) {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("store.instance_id", info.StoreID),
		attribute.String("store.action", info.Action),
		attribute.Int64("store.dispatch.token", int64(info.Token)),
	}
	if o.config.AttributeExtractor != nil {
		attrs = append(attrs, o.config.AttributeExtractor(info)...)
	}

	_, span := o.config.tracer.Start(context.Background(), "dispatch "+info.Action,
		trace.WithAttributes(attrs...))

	o.mu.Lock()
	o.spans[info.Token] = span
	o.mu.Unlock()
}

func (o *otelInterceptor) DispatchSettled(info dispatch.Info, outcome dispatch.Outcome, err error, _ time.Duration) {
	o.mu.Lock()
	span, ok := o.spans[info.Token]
	delete(o.spans, info.Token)
	o.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.String("store.dispatch.outcome", outcome.String()))
	switch outcome {
	case dispatch.Errored:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case dispatch.Cancelled:
		span.SetAttributes(attribute.Bool("store.dispatch.cancelled", true))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
