package extension

import (
	"context"

	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
)

// Store defines persistence operations for installed extensions. Every
// mutating method is a single atomic operation against the record's key;
// callers never read-modify-write through separate calls.
type Store interface {
	// CreateExtension persists a new extension record.
	CreateExtension(ctx context.Context, e *Extension) error

	// GetExtension retrieves an extension by ID.
	GetExtension(ctx context.Context, extID id.ExtensionID) (*Extension, error)

	// ListExtensions returns extensions matching the filter, oldest first.
	ListExtensions(ctx context.Context, filter *ListFilter) ([]*Extension, error)

	// CountExtensions returns the number of extensions matching the filter.
	CountExtensions(ctx context.Context, filter *ListFilter) (int64, error)

	// SetExtensionActive sets the active flag. The boolean result reports
	// whether the stored state changed; a no-op leaves UpdatedAt untouched.
	SetExtensionActive(ctx context.Context, extID id.ExtensionID, active bool) (*Extension, bool, error)

	// SetExtensionSettingsValues replaces the settings values wholesale.
	// It fails with store.ErrConditionFailed when the extension is not
	// configurable.
	SetExtensionSettingsValues(ctx context.Context, extID id.ExtensionID, values manifest.Values) (*Extension, error)

	// ReplaceExtensionManifest stores the manifest-derived fields and
	// settings of e, provided the stored version still equals fromVersion.
	// Lifecycle state, ownership and source are never modified.
	ReplaceExtensionManifest(ctx context.Context, e *Extension, fromVersion string) (*Extension, error)

	// DeleteExtension removes a non-system extension and all of its storage
	// items. It fails with store.ErrConditionFailed for system extensions.
	DeleteExtension(ctx context.Context, extID id.ExtensionID) error
}
