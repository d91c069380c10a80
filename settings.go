package annex

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/store"
)

// UpdateExtensionSettings replaces the stored settings values of a
// configurable extension. Keys absent from values are removed. Unless
// Config.PermissiveSettings is set, values must satisfy the declared
// settings schema.
func (e *Engine) UpdateExtensionSettings(ctx context.Context, extID id.ExtensionID, values manifest.Values) (*extension.Extension, error) {
	const op = "update_settings"

	sctx, cancel := e.opContext(ctx)
	defer cancel()

	cur, err := e.store.GetExtension(sctx, extID)
	if err != nil {
		return nil, e.storeErr(op, extID, err)
	}
	if !cur.Settings.Configurable {
		return nil, notConfigurableError(op, extID, nil)
	}

	if values == nil {
		values = manifest.Values{}
	}
	issues := values.Check()
	if !e.config.PermissiveSettings {
		issues = manifest.ValidateValues(cur.Settings.Schema, values)
	}
	if len(issues) > 0 {
		return nil, validationError(op, extID, "invalid settings values", issues, nil)
	}

	updated, err := e.store.SetExtensionSettingsValues(sctx, extID, values)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, notConfigurableError(op, extID, err)
		}
		return nil, e.storeErr(op, extID, err)
	}

	e.logger.Info("extension settings updated",
		slog.String("extension_id", extID.String()),
		slog.Int("values", len(values)),
	)
	e.record(sctx, updated, eventlog.EventSettingsUpdated, nil)
	e.observers.EmitSettingsUpdated(ctx, updated)
	return updated, nil
}

// UpdateExtensionSettingsMap is UpdateExtensionSettings for loosely typed
// input such as a decoded JSON object.
func (e *Engine) UpdateExtensionSettingsMap(ctx context.Context, extID id.ExtensionID, raw map[string]any) (*extension.Extension, error) {
	values := make(manifest.Values, len(raw))
	var issues []manifest.Issue
	for k, x := range raw {
		v, err := manifest.ValueOf(x)
		if err != nil {
			issues = append(issues, manifest.Issue{Path: "values." + k, Message: err.Error()})
			continue
		}
		values[k] = v
	}
	if len(issues) > 0 {
		slices.SortFunc(issues, func(a, b manifest.Issue) int { return strings.Compare(a.Path, b.Path) })
		return nil, validationError("update_settings", extID, "invalid settings values", issues, nil)
	}
	return e.UpdateExtensionSettings(ctx, extID, values)
}

func notConfigurableError(op string, extID id.ExtensionID, cause error) *Error {
	return &Error{
		Kind:        KindNotConfigurable,
		Op:          op,
		ExtensionID: extID,
		Message:     "extension settings are not configurable",
		Err:         cause,
	}
}
