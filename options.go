package annex

import (
	"log/slog"

	"github.com/xraph/annex/observer"
	"github.com/xraph/annex/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithObserver registers a lifecycle observer with the engine.
func WithObserver(o observer.Observer) Option {
	return func(e *Engine) { e.pending = append(e.pending, o) }
}
