package registry

import "log/slog"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithLogger scopes hub logs under the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.config.logger = l.With(slog.String("component", "hub"))
	}
}

// WithSizeObserver registers a callback invoked with the number of
// registered devices after every insert or removal.
func WithSizeObserver(fn func(int)) Option {
	return func(h *Hub) {
		h.config.sizeObserver = fn
	}
}
