package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// factory wraps promauto with a chosen registerer so tests can register
// against private registries without label collisions.
type factory struct {
	f promauto.Factory
}

func promautoWith(r prometheus.Registerer) factory {
	return factory{f: promauto.With(r)}
}

func (fa factory) counter(opts prometheus.CounterOpts) prometheus.Counter {
	return fa.f.NewCounter(opts)
}

func (fa factory) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return fa.f.NewCounterVec(opts, labels)
}

func (fa factory) gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	return fa.f.NewGauge(opts)
}

func (fa factory) histogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	return fa.f.NewHistogram(opts)
}
