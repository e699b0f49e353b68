package service

import (
	"time"

	"github.com/layer-3/tessera/internal/logging"
	"github.com/layer-3/tessera/internal/metrics"
)

// Option configures the services in this package
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		logger: logging.NopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
