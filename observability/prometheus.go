package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory registers collectors on a Prometheus registerer.
// Dotted names become underscored, e.g. credits.action.committed is
// exported as credits_action_committed_total.
type PrometheusFactory struct {
	reg prometheus.Registerer
}

// NewPrometheusFactory returns a factory registering on reg, or on the
// default registerer when reg is nil.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{reg: reg}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Count of " + name + ".",
	})
	return register(f.reg, c)
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name + ".",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	})
	return register(f.reg, h)
}

// register returns the already registered collector when name is taken,
// so two engines in one process share series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
