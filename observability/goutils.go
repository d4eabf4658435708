package observability

import (
	"github.com/xraph/go-utils/metrics"
)

// ForgeFactory adapts a go-utils metric factory, such as forge's
// app.Metrics(), to MetricFactory.
type ForgeFactory struct {
	F metrics.MetricFactory
}

// Counter implements MetricFactory.
func (f ForgeFactory) Counter(name string) Counter { return f.F.Counter(name) }

// Histogram implements MetricFactory.
func (f ForgeFactory) Histogram(name string) Histogram { return f.F.Histogram(name) }

// StandaloneFactory creates go-utils metrics that are not attached to any
// registry. Values can be read back through the returned metrics.
type StandaloneFactory struct{}

// Counter implements MetricFactory.
func (StandaloneFactory) Counter(name string) Counter { return metrics.NewCounter(name) }

// Histogram implements MetricFactory.
func (StandaloneFactory) Histogram(name string) Histogram {
	return metrics.NewHistogram(name, metrics.WithDefaultHistogramBuckets())
}
