// Package observer lets host applications react to extension lifecycle
// events: installs, state changes, settings writes, upgrades and scoped
// storage writes.
//
// Each hook is a separate interface so an observer implements only the
// events it cares about. Hooks run after the change is committed; their
// errors are logged and never undo or fail the operation.
package observer

import (
	"context"

	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
)

// Observer is the base interface all observers implement.
type Observer interface {
	// Name identifies the observer in logs.
	Name() string
}

// ExtensionInstalled is called after an extension is installed.
type ExtensionInstalled interface {
	OnExtensionInstalled(ctx context.Context, e *extension.Extension) error
}

// ExtensionEnabled is called after an inactive extension is enabled.
type ExtensionEnabled interface {
	OnExtensionEnabled(ctx context.Context, e *extension.Extension) error
}

// ExtensionDisabled is called after an active extension is disabled.
type ExtensionDisabled interface {
	OnExtensionDisabled(ctx context.Context, e *extension.Extension) error
}

// ExtensionUninstalled is called after an extension and its storage are
// removed. e is the record as it was before removal.
type ExtensionUninstalled interface {
	OnExtensionUninstalled(ctx context.Context, e *extension.Extension) error
}

// SettingsUpdated is called after settings values are replaced.
type SettingsUpdated interface {
	OnSettingsUpdated(ctx context.Context, e *extension.Extension) error
}

// ExtensionUpgraded is called after an extension moves to a new manifest
// version.
type ExtensionUpgraded interface {
	OnExtensionUpgraded(ctx context.Context, e *extension.Extension, previousVersion string) error
}

// StorageWritten is called after a scoped storage key is set.
type StorageWritten interface {
	OnStorageWritten(ctx context.Context, extID id.ExtensionID, key string) error
}

// StorageDeleted is called after a scoped storage key is deleted.
type StorageDeleted interface {
	OnStorageDeleted(ctx context.Context, extID id.ExtensionID, key string) error
}

// Shutdown is called when the engine stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
