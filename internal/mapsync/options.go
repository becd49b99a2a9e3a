package mapsync

import "github.com/rs/zerolog"

type options struct {
	logger zerolog.Logger
	style  LineStyle
}

// Option configures a synchronizer.
type Option func(*options)

// WithLogger routes degraded-operation warnings to l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLineStyle overrides the default route line style. A route's own
// color still takes precedence.
func WithLineStyle(s LineStyle) Option {
	return func(o *options) { o.style = s }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zerolog.Nop(),
		style:  DefaultLineStyle,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
