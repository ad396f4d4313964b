package forestkv

import (
	"github.com/forestkv/forestkv/builder"
)

type options struct {
	logger      *Logger
	builderOpts builder.Options
}

// Option configures a Forest constructed by New.
//
// Today options primarily exist to avoid exploding New's parameter list;
// the surface is expected to grow as new ambient concerns (metrics,
// tracing) are added.
type Option func(*options)

// WithLogger sets the Logger used for build and search diagnostics. If
// nil, logging is discarded.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithBuilderOptions overrides the builder.Options used by Build, letting
// callers tune K, concurrency, or the imbalance thresholds without
// reaching into the builder package directly.
func WithBuilderOptions(b builder.Options) Option {
	return func(o *options) { o.builderOpts = b }
}

func defaultOptions() options {
	return options{
		logger:      NoopLogger(),
		builderOpts: builder.DefaultOptions,
	}
}
