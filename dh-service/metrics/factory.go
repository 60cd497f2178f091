package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Factory creates metrics that are registered with a single registry.
type Factory interface {
	NewCounter(opts prometheus.CounterOpts) prometheus.Counter
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec
	NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge
	NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec
	NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram
	NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec
}

type factory struct {
	promauto.Factory
}

func (f *factory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	return f.Factory.NewCounter(opts)
}

func (f *factory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	return f.Factory.NewCounterVec(opts, labelNames)
}

func (f *factory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	return f.Factory.NewGauge(opts)
}

func (f *factory) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	return f.Factory.NewGaugeVec(opts, labelNames)
}

func (f *factory) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	return f.Factory.NewHistogram(opts)
}

func (f *factory) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	return f.Factory.NewHistogramVec(opts, labelNames)
}

func With(registry *prometheus.Registry) Factory {
	return &factory{Factory: promauto.With(registry)}
}

// NewRegistry returns a registry with the process and go collectors attached.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}
