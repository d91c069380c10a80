package annex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/store"
)

// EnableExtension marks an extension active. Enabling an active extension
// succeeds without recording an event.
func (e *Engine) EnableExtension(ctx context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	return e.setActive(ctx, "enable", extID, true)
}

// DisableExtension marks an extension inactive. Its settings and storage
// are kept.
func (e *Engine) DisableExtension(ctx context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	return e.setActive(ctx, "disable", extID, false)
}

func (e *Engine) setActive(ctx context.Context, op string, extID id.ExtensionID, active bool) (*extension.Extension, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	ext, changed, err := e.store.SetExtensionActive(sctx, extID, active)
	if err != nil {
		return nil, e.storeErr(op, extID, err)
	}
	if !changed {
		return ext, nil
	}

	e.logger.Info("extension "+op+"d", slog.String("extension_id", extID.String()))
	if active {
		e.record(sctx, ext, eventlog.EventEnabled, nil)
		e.observers.EmitEnabled(ctx, ext)
	} else {
		e.record(sctx, ext, eventlog.EventDisabled, nil)
		e.observers.EmitDisabled(ctx, ext)
	}
	return ext, nil
}

// UninstallExtension removes an extension together with all of its
// storage. System extensions are refused.
func (e *Engine) UninstallExtension(ctx context.Context, extID id.ExtensionID) error {
	const op = "uninstall"

	sctx, cancel := e.opContext(ctx)
	defer cancel()

	ext, err := e.store.GetExtension(sctx, extID)
	if err != nil {
		return e.storeErr(op, extID, err)
	}
	if ext.IsSystem {
		return protectedError(op, extID, nil)
	}

	if err := e.store.DeleteExtension(sctx, extID); err != nil {
		switch {
		case errors.Is(err, store.ErrConditionFailed):
			return protectedError(op, extID, err)
		case errors.Is(err, store.ErrNotFound):
			return notFoundError(op, extID, err)
		default:
			return storageError(op, extID, err)
		}
	}

	e.logger.Info("extension uninstalled",
		slog.String("extension_id", extID.String()),
		slog.String("name", ext.Name),
	)
	e.record(sctx, ext, eventlog.EventUninstalled, nil)
	e.observers.EmitUninstalled(ctx, ext)
	return nil
}

// UpgradeExtension replaces the manifest of an installed extension with a
// newer version of the same extension. Lifecycle state, ownership and
// source are kept. Stored settings values that no longer fit the new
// schema are dropped.
func (e *Engine) UpgradeExtension(ctx context.Context, extID id.ExtensionID, raw any) (*extension.Extension, error) {
	const op = "upgrade"

	m, err := manifest.Parse(raw)
	if err != nil {
		var ve *manifest.ValidationError
		var issues []manifest.Issue
		if errors.As(err, &ve) {
			issues = ve.Issues
		}
		return nil, validationError(op, extID, "invalid manifest", issues, err)
	}

	sctx, cancel := e.opContext(ctx)
	defer cancel()

	cur, err := e.store.GetExtension(sctx, extID)
	if err != nil {
		return nil, e.storeErr(op, extID, err)
	}

	if issues := upgradeIssues(cur, m); len(issues) > 0 {
		return nil, validationError(op, extID, "manifest is not an upgrade", issues, nil)
	}

	next := cur.Clone()
	next.ApplyManifest(m)
	next.Settings.Values = carryValues(next.Settings, cur.Settings.Values)

	updated, err := e.store.ReplaceExtensionManifest(sctx, next, cur.Version)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConditionFailed):
			return nil, &Error{Kind: KindConflict, Op: op, ExtensionID: extID, Message: "extension was upgraded concurrently", Err: err}
		default:
			return nil, e.storeErr(op, extID, err)
		}
	}

	e.logger.Info("extension upgraded",
		slog.String("extension_id", extID.String()),
		slog.String("from", cur.Version),
		slog.String("to", updated.Version),
	)
	e.record(sctx, updated, eventlog.EventUpgraded, map[string]any{"previous_version": cur.Version})
	e.observers.EmitUpgraded(ctx, updated, cur.Version)
	return updated, nil
}

func upgradeIssues(cur *extension.Extension, m *manifest.Manifest) []manifest.Issue {
	var issues []manifest.Issue
	if m.Name != cur.Name {
		issues = append(issues, manifest.Issue{
			Path:    "name",
			Message: fmt.Sprintf("must equal the installed name %q", cur.Name),
		})
	}
	if m.Type != cur.Type {
		issues = append(issues, manifest.Issue{
			Path:    "type",
			Message: fmt.Sprintf("must equal the installed type %q", cur.Type),
		})
	}

	next, err := m.SemVer()
	if err != nil {
		issues = append(issues, manifest.Issue{Path: "version", Message: err.Error()})
		return issues
	}
	prev, err := (&manifest.Manifest{Version: cur.Version}).SemVer()
	if err == nil && !next.GreaterThan(prev) {
		issues = append(issues, manifest.Issue{
			Path:    "version",
			Message: fmt.Sprintf("%s is not greater than the installed version %s", m.Version, cur.Version),
		})
	}
	return issues
}

// carryValues keeps the previous values that individually satisfy the new
// settings schema.
func carryValues(s extension.Settings, prev manifest.Values) manifest.Values {
	if !s.Configurable || len(prev) == 0 {
		return manifest.Values{}
	}

	bad := make(map[string]bool)
	for _, is := range manifest.ValidateValues(s.Schema, prev) {
		if k, ok := strings.CutPrefix(is.Path, "values."); ok {
			bad[k] = true
		}
	}

	out := make(manifest.Values, len(prev))
	for k, v := range prev {
		if !bad[k] {
			out[k] = v
		}
	}
	return out
}

func protectedError(op string, extID id.ExtensionID, cause error) *Error {
	return &Error{
		Kind:        KindSystemProtected,
		Op:          op,
		ExtensionID: extID,
		Message:     "system extensions cannot be uninstalled",
		Err:         cause,
	}
}
