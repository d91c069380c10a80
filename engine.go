package annex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/observer"
	"github.com/xraph/annex/store"
)

// Engine coordinates manifest validation, the extension registry, the
// lifecycle and settings managers, and scoped storage over one store.
type Engine struct {
	store     store.Store
	observers *observer.Registry
	logger    *slog.Logger
	config    Config

	pending []observer.Observer
}

// NewEngine creates a new annex engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrStoreRequired
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	e.observers = observer.NewRegistry(e.logger)
	for _, o := range e.pending {
		e.observers.Register(o)
	}
	e.pending = nil

	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Observers returns the observer registry.
func (e *Engine) Observers() *observer.Registry { return e.observers }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Start applies event retention when configured. The engine runs no
// background work.
func (e *Engine) Start(ctx context.Context) error {
	if e.config.EventRetention <= 0 || e.config.DisableEventLog {
		return nil
	}
	n, err := e.PurgeEvents(ctx, time.Now().UTC().Add(-e.config.EventRetention))
	if err != nil {
		return fmt.Errorf("annex: purge events: %w", err)
	}
	if n > 0 {
		e.logger.Info("purged lifecycle events", slog.Int64("count", n))
	}
	return nil
}

// Stop notifies shutdown observers.
func (e *Engine) Stop(ctx context.Context) error {
	e.observers.EmitShutdown(ctx)
	return nil
}

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

// ValidateManifest checks raw and reports every violation keyed by field
// path. It never touches the store.
func (e *Engine) ValidateManifest(raw any) *manifest.Result {
	return manifest.Validate(raw)
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

// InstallExtension validates raw and persists a new, active extension.
// Validation failures abort before any write.
func (e *Engine) InstallExtension(ctx context.Context, raw any, p InstallParams) (*extension.Extension, error) {
	const op = "install"

	m, err := manifest.Parse(raw)
	if err != nil {
		var ve *manifest.ValidationError
		errors.As(err, &ve)
		var issues []manifest.Issue
		if ve != nil {
			issues = ve.Issues
		}
		return nil, validationError(op, id.Nil, "invalid manifest", issues, err)
	}

	if p.UserID == "" {
		owner := OwnerFromContext(ctx)
		p.UserID = owner.UserID
		if p.OrganizationID == "" {
			p.OrganizationID = owner.OrganizationID
		}
	}
	if p.Source == "" {
		p.Source = extension.SourceCustom
	}

	var issues []manifest.Issue
	if p.UserID == "" {
		issues = append(issues, manifest.Issue{Path: "userId", Message: "is required"})
	}
	if !p.Source.IsValid() {
		issues = append(issues, manifest.Issue{
			Path:    "installationSource",
			Message: fmt.Sprintf("%q is not one of %q", p.Source, extension.Sources()),
		})
	}
	if len(issues) > 0 {
		return nil, validationError(op, id.Nil, "invalid installation parameters", issues, nil)
	}

	ext := extension.New(m, p.UserID, p.OrganizationID, p.Source)

	sctx, cancel := e.opContext(ctx)
	defer cancel()
	if err := e.store.CreateExtension(sctx, ext); err != nil {
		return nil, storageError(op, ext.ID, err)
	}

	e.logger.Info("extension installed",
		slog.String("extension_id", ext.ID.String()),
		slog.String("name", ext.Name),
		slog.String("version", ext.Version),
		slog.String("source", string(ext.Source)),
	)
	e.record(sctx, ext, eventlog.EventInstalled, nil)
	e.observers.EmitInstalled(ctx, ext)

	return ext, nil
}

// GetExtension returns one extension.
func (e *Engine) GetExtension(ctx context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	ext, err := e.store.GetExtension(sctx, extID)
	if err != nil {
		return nil, e.storeErr("get", extID, err)
	}
	return ext, nil
}

// ListExtensions returns extensions matching filter. With neither UserID
// nor OrganizationID set the collection is unfiltered; scoping it to the
// caller is the host's concern.
func (e *Engine) ListExtensions(ctx context.Context, filter *extension.ListFilter) ([]*extension.Extension, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	list, err := e.store.ListExtensions(sctx, filter)
	if err != nil {
		return nil, storageError("list", id.Nil, err)
	}
	return list, nil
}

// CountExtensions returns the number of extensions matching filter.
func (e *Engine) CountExtensions(ctx context.Context, filter *extension.ListFilter) (int64, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.store.CountExtensions(sctx, filter)
	if err != nil {
		return 0, storageError("count", id.Nil, err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// opContext bounds a store call by the configured operation timeout.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.OperationTimeout)
}

// storeErr classifies a store failure for an operation addressing extID.
func (e *Engine) storeErr(op string, extID id.ExtensionID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(op, extID, err)
	}
	return storageError(op, extID, err)
}
