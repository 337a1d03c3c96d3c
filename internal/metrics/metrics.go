// Package metrics provides Prometheus metrics for the keyboard pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the pipeline's Prometheus collectors.
type Pipeline struct {
	enabled  bool
	registry prometheus.Registerer

	keysProcessed      *prometheus.CounterVec
	eventsEmitted      prometheus.Counter
	eventsDropped      *prometheus.CounterVec
	imeRequests        prometheus.Counter
	imeHandled         prometheus.Counter
	imeFallbacks       *prometheus.CounterVec
	releasesSuppressed prometheus.Counter
	composeResults     *prometheus.CounterVec
	pendingRequests    prometheus.Gauge
	replyLatency       prometheus.Histogram
}

// Option configures the pipeline metrics.
type Option func(*Pipeline)

// WithRegistry uses a custom registry instead of the default registerer.
func WithRegistry(r prometheus.Registerer) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithEnabled toggles collection. A disabled pipeline still serves valid
// collectors so call sites never nil-check.
func WithEnabled(enabled bool) Option {
	return func(p *Pipeline) { p.enabled = enabled }
}

// NewPipeline creates and registers the pipeline metrics under the given
// namespace.
func NewPipeline(namespace string, opts ...Option) *Pipeline {
	if namespace == "" {
		namespace = "keypipe"
	}
	p := &Pipeline{enabled: true, registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(p)
	}
	factory := promautoWith(p.registry)

	p.keysProcessed = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pipeline",
		Name: "keys_processed_total",
		Help: "Physical key transitions entering the pipeline.",
	}, []string{"action"})
	p.eventsEmitted = factory.counter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pipeline",
		Name: "events_emitted_total",
		Help: "Resolved key events delivered to the application callback.",
	})
	p.eventsDropped = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pipeline",
		Name: "events_dropped_total",
		Help: "Events dropped before delivery.",
	}, []string{"reason"})
	p.imeRequests = factory.counter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ime",
		Name: "requests_total",
		Help: "ProcessKey requests submitted to the IME backend.",
	})
	p.imeHandled = factory.counter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ime",
		Name: "handled_total",
		Help: "Requests the IME backend reported as handled.",
	})
	p.imeFallbacks = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ime",
		Name: "fallbacks_total",
		Help: "Requests resolved by the local candidate instead of the IME.",
	}, []string{"reason"})
	p.releasesSuppressed = factory.counter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ime",
		Name: "releases_suppressed_total",
		Help: "Key releases suppressed because the IME handled the press.",
	})
	p.composeResults = factory.counterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "compose",
		Name: "results_total",
		Help: "Compose engine outcomes.",
	}, []string{"status"})
	p.pendingRequests = factory.gauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "ime",
		Name: "pending_requests",
		Help: "In-flight ProcessKey requests.",
	})
	p.replyLatency = factory.histogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "ime",
		Name:    "reply_latency_seconds",
		Help:    "Latency of IME ProcessKey replies.",
		Buckets: prometheus.DefBuckets,
	})
	return p
}

// KeyProcessed counts a physical transition by action name.
func (p *Pipeline) KeyProcessed(action string) {
	if p.enabled {
		p.keysProcessed.WithLabelValues(action).Inc()
	}
}

// EventEmitted counts one delivered ResolvedKeyEvent.
func (p *Pipeline) EventEmitted() {
	if p.enabled {
		p.eventsEmitted.Inc()
	}
}

// EventDropped counts a dropped event by reason.
func (p *Pipeline) EventDropped(reason string) {
	if p.enabled {
		p.eventsDropped.WithLabelValues(reason).Inc()
	}
}

// IMERequest counts a submitted request and bumps the pending gauge.
func (p *Pipeline) IMERequest() {
	if p.enabled {
		p.imeRequests.Inc()
		p.pendingRequests.Inc()
	}
}

// IMEReply settles the pending gauge and records reply latency.
func (p *Pipeline) IMEReply(latencySeconds float64) {
	if p.enabled {
		p.pendingRequests.Dec()
		p.replyLatency.Observe(latencySeconds)
	}
}

// IMEHandled counts a handled=true reply.
func (p *Pipeline) IMEHandled() {
	if p.enabled {
		p.imeHandled.Inc()
	}
}

// IMEFallback counts a local-candidate fallback by reason.
func (p *Pipeline) IMEFallback(reason string) {
	if p.enabled {
		p.imeFallbacks.WithLabelValues(reason).Inc()
	}
}

// ReleaseSuppressed counts one suppressed release.
func (p *Pipeline) ReleaseSuppressed() {
	if p.enabled {
		p.releasesSuppressed.Inc()
	}
}

// ComposeResult counts one compose outcome by status name.
func (p *Pipeline) ComposeResult(status string) {
	if p.enabled {
		p.composeResults.WithLabelValues(status).Inc()
	}
}
