package resolver

import (
	"time"

	"go.uber.org/zap"
)

// Options configures a Runtime.
//
// Defaults:
//   - Concurrency: 16 resolver calls in flight per batch; <= 0 means unbounded
//   - Timeout:     none (applied only when the context has no deadline)
//   - Logger:      no-op
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *zap.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Concurrency: 16,
		Logger:      zap.NewNop(),
	}
}

func WithConcurrency(n int) Option        { return func(o *Options) { o.Concurrency = n } }
func WithTimeout(d time.Duration) Option  { return func(o *Options) { o.Timeout = d } }
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
