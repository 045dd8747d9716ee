package buffer

import (
	"github.com/youwol/ywdash/metric"
)

// Option configures an inbox.
type Option func(*bufferOptions)

type bufferOptions struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for inbox statistics.
// The prefix becomes the component label. Ignored if registry is nil.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(opts *bufferOptions) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions(options ...Option) *bufferOptions {
	opts := &bufferOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
