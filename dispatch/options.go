package dispatch

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/internal/bufpool"
	"github.com/luciancaetano/tickwire/metrics"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithCodec sets the message codec. The default is the schema codec over the
// runtime's table.
func WithCodec(c codec.Codec) Option {
	return func(r *Runtime) {
		r.codec = c
	}
}

// WithLogger sets the logger used for dropped messages.
func WithLogger(logger tickwire.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for dispatch spans. The default comes from
// the global otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runtime) {
		r.tracer = tracer
	}
}

// WithFaultHandler sets the handler for inbound messages that cannot be
// dispatched. It replaces the default warn log.
func WithFaultHandler(h FaultHandler) Option {
	return func(r *Runtime) {
		r.onFault = h
	}
}

// WithBufferSize sets the initial and maximum retained size of pooled encode
// buffers.
func WithBufferSize(size, maxRetain int) Option {
	return func(r *Runtime) {
		r.pool = bufpool.New(size, maxRetain)
	}
}
