package observer

import (
	"context"
	"log/slog"

	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
)

// entry pairs a hook with its observer name for logging.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered observers and dispatches lifecycle events.
// Hooks are type-cached at registration so each emit only visits the
// observers implementing it. Register all observers before the engine
// serves requests; the registry is not safe for concurrent registration.
type Registry struct {
	observers []Observer
	logger    *slog.Logger

	installed      []entry[ExtensionInstalled]
	enabled        []entry[ExtensionEnabled]
	disabled       []entry[ExtensionDisabled]
	uninstalled    []entry[ExtensionUninstalled]
	settings       []entry[SettingsUpdated]
	upgraded       []entry[ExtensionUpgraded]
	storageWritten []entry[StorageWritten]
	storageDeleted []entry[StorageDeleted]
	shutdown       []entry[Shutdown]
}

// NewRegistry creates an observer registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an observer. Observers are notified in registration order.
func (r *Registry) Register(o Observer) {
	r.observers = append(r.observers, o)
	name := o.Name()

	if h, ok := o.(ExtensionInstalled); ok {
		r.installed = append(r.installed, entry[ExtensionInstalled]{name, h})
	}
	if h, ok := o.(ExtensionEnabled); ok {
		r.enabled = append(r.enabled, entry[ExtensionEnabled]{name, h})
	}
	if h, ok := o.(ExtensionDisabled); ok {
		r.disabled = append(r.disabled, entry[ExtensionDisabled]{name, h})
	}
	if h, ok := o.(ExtensionUninstalled); ok {
		r.uninstalled = append(r.uninstalled, entry[ExtensionUninstalled]{name, h})
	}
	if h, ok := o.(SettingsUpdated); ok {
		r.settings = append(r.settings, entry[SettingsUpdated]{name, h})
	}
	if h, ok := o.(ExtensionUpgraded); ok {
		r.upgraded = append(r.upgraded, entry[ExtensionUpgraded]{name, h})
	}
	if h, ok := o.(StorageWritten); ok {
		r.storageWritten = append(r.storageWritten, entry[StorageWritten]{name, h})
	}
	if h, ok := o.(StorageDeleted); ok {
		r.storageDeleted = append(r.storageDeleted, entry[StorageDeleted]{name, h})
	}
	if h, ok := o.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Observers returns all registered observers.
func (r *Registry) Observers() []Observer { return r.observers }

// EmitInstalled notifies ExtensionInstalled observers.
func (r *Registry) EmitInstalled(ctx context.Context, e *extension.Extension) {
	for _, en := range r.installed {
		r.check("OnExtensionInstalled", en.name, en.hook.OnExtensionInstalled(ctx, e))
	}
}

// EmitEnabled notifies ExtensionEnabled observers.
func (r *Registry) EmitEnabled(ctx context.Context, e *extension.Extension) {
	for _, en := range r.enabled {
		r.check("OnExtensionEnabled", en.name, en.hook.OnExtensionEnabled(ctx, e))
	}
}

// EmitDisabled notifies ExtensionDisabled observers.
func (r *Registry) EmitDisabled(ctx context.Context, e *extension.Extension) {
	for _, en := range r.disabled {
		r.check("OnExtensionDisabled", en.name, en.hook.OnExtensionDisabled(ctx, e))
	}
}

// EmitUninstalled notifies ExtensionUninstalled observers.
func (r *Registry) EmitUninstalled(ctx context.Context, e *extension.Extension) {
	for _, en := range r.uninstalled {
		r.check("OnExtensionUninstalled", en.name, en.hook.OnExtensionUninstalled(ctx, e))
	}
}

// EmitSettingsUpdated notifies SettingsUpdated observers.
func (r *Registry) EmitSettingsUpdated(ctx context.Context, e *extension.Extension) {
	for _, en := range r.settings {
		r.check("OnSettingsUpdated", en.name, en.hook.OnSettingsUpdated(ctx, e))
	}
}

// EmitUpgraded notifies ExtensionUpgraded observers.
func (r *Registry) EmitUpgraded(ctx context.Context, e *extension.Extension, previousVersion string) {
	for _, en := range r.upgraded {
		r.check("OnExtensionUpgraded", en.name, en.hook.OnExtensionUpgraded(ctx, e, previousVersion))
	}
}

// EmitStorageWritten notifies StorageWritten observers.
func (r *Registry) EmitStorageWritten(ctx context.Context, extID id.ExtensionID, key string) {
	for _, en := range r.storageWritten {
		r.check("OnStorageWritten", en.name, en.hook.OnStorageWritten(ctx, extID, key))
	}
}

// EmitStorageDeleted notifies StorageDeleted observers.
func (r *Registry) EmitStorageDeleted(ctx context.Context, extID id.ExtensionID, key string) {
	for _, en := range r.storageDeleted {
		r.check("OnStorageDeleted", en.name, en.hook.OnStorageDeleted(ctx, extID, key))
	}
}

// EmitShutdown notifies Shutdown observers.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, en := range r.shutdown {
		r.check("OnShutdown", en.name, en.hook.OnShutdown(ctx))
	}
}

// check logs a hook error. Hook errors never propagate.
func (r *Registry) check(hook, name string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("observer hook error",
		slog.String("hook", hook),
		slog.String("observer", name),
		slog.String("error", err.Error()),
	)
}
