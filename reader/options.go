package reader

import "log/slog"

// Options configures a Reader.
type Options struct {
	Logger *slog.Logger
}

// DefaultOptions is the zero-configuration reader: a discarding logger.
var DefaultOptions = Options{Logger: slog.New(slog.DiscardHandler)}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = DefaultOptions.Logger
	}
	return o
}
