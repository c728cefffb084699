// Package metrics exposes Prometheus collectors for the protocol runtime.
//
// A nil *Collector is valid and records nothing, so components take one
// optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fault kinds used as the "kind" label.
const (
	FaultMalformedFrame = "malformed_frame"
	FaultUnknownOpcode  = "unknown_opcode"
	FaultDecode         = "decode"
	FaultHandlerPanic   = "handler_panic"
	FaultUnhandled      = "unhandled"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "tickwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for tick duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "tickwire",
		Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the runtime metrics.
type Collector struct {
	framesIn     *prometheus.CounterVec
	framesOut    *prometheus.CounterVec
	faults       *prometheus.CounterVec
	sendErrors   prometheus.Counter
	sessions     prometheus.Gauge
	queued       prometheus.Counter
	tickDuration prometheus.Histogram
}

// New registers the collectors and returns them.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		framesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "inbound_messages_total",
			Help:        "Inbound messages decoded and dispatched, by message name",
			ConstLabels: config.ConstLabels,
		}, []string{"message"}),

		framesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "outbound_messages_total",
			Help:        "Outbound messages encoded and handed to the transport, by message name",
			ConstLabels: config.ConstLabels,
		}, []string{"message"}),

		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "inbound_faults_total",
			Help:        "Inbound messages that could not be dispatched, by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "send_errors_total",
			Help:        "Outbound sends that failed to encode or reach the transport",
			ConstLabels: config.ConstLabels,
		}),

		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_open",
			Help:        "Currently open sessions",
			ConstLabels: config.ConstLabels,
		}),

		queued: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_drained_total",
			Help:        "Transport events drained on the tick goroutine",
			ConstLabels: config.ConstLabels,
		}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tick_duration_seconds",
			Help:        "Duration of one TickAll pass",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

func (c *Collector) InboundMessage(name string) {
	if c == nil {
		return
	}
	c.framesIn.WithLabelValues(name).Inc()
}

func (c *Collector) OutboundMessage(name string) {
	if c == nil {
		return
	}
	c.framesOut.WithLabelValues(name).Inc()
}

func (c *Collector) Fault(kind string) {
	if c == nil {
		return
	}
	c.faults.WithLabelValues(kind).Inc()
}

func (c *Collector) SendError() {
	if c == nil {
		return
	}
	c.sendErrors.Inc()
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessions.Dec()
}

func (c *Collector) EventsDrained(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.queued.Add(float64(n))
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.tickDuration.Observe(d.Seconds())
}
