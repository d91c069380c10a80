package forgeext

import (
	"log/slog"

	"github.com/xraph/annex"
	"github.com/xraph/annex/observer"
	"github.com/xraph/annex/store"
)

// ExtOption configures the annex Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.annexOpts = append(e.annexOpts, annex.WithStore(s))
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...annex.Option) ExtOption {
	return func(e *Extension) {
		e.annexOpts = append(e.annexOpts, opts...)
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(o observer.Observer) ExtOption {
	return func(e *Extension) {
		e.observers = append(e.observers, o)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
