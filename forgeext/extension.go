// Package forgeext provides a Forge extension entry point for annex.
package forgeext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/annex"
	"github.com/xraph/annex/api"
	"github.com/xraph/annex/observer"
	"github.com/xraph/annex/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "annex"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Extension registry, lifecycle, settings and scoped storage"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts annex as a Forge extension.
type Extension struct {
	config     Config
	eng        *annex.Engine
	apiHandler *api.API
	logger     *slog.Logger
	annexOpts  []annex.Option
	observers  []observer.Observer
}

// New creates an annex Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying annex engine.
func (e *Extension) Engine() *annex.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*annex.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("annex: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	var s store.Store
	if injected, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		s = injected
	}

	eng, err := e.buildEngine(s)
	if err != nil {
		return err
	}
	e.eng = eng

	e.apiHandler = api.New(eng, fapp.Router(), e.apiOptions()...)

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("annex: register routes: %w", err)
		}
	}

	return nil
}

// buildEngine assembles the engine from the extension's options. A store
// resolved from the container is applied first so WithStore can override it.
func (e *Extension) buildEngine(injected store.Store) (*annex.Engine, error) {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]annex.Option, 0, len(e.annexOpts)+len(e.observers)+3)
	opts = append(opts, annex.WithLogger(logger))

	if e.config.OperationTimeout > 0 {
		cfg := annex.DefaultConfig()
		cfg.OperationTimeout = e.config.OperationTimeout
		opts = append(opts, annex.WithConfig(cfg))
	}
	if injected != nil {
		opts = append(opts, annex.WithStore(injected))
	}

	opts = append(opts, e.annexOpts...)

	for _, o := range e.observers {
		opts = append(opts, annex.WithObserver(o))
	}

	eng, err := annex.NewEngine(opts...)
	if err != nil {
		return nil, fmt.Errorf("annex: create engine: %w", err)
	}
	return eng, nil
}

func (e *Extension) apiOptions() []api.Option {
	var opts []api.Option
	if e.config.BasePath != "" {
		opts = append(opts, api.WithBasePath(e.config.BasePath))
	}
	if e.config.RequireOwner {
		opts = append(opts, api.WithOwnerCheck())
	}
	return opts
}

// Start runs migrations if enabled and starts the annex engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("annex: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("annex: migration failed: %w", err)
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the annex engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("annex: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all annex API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
