// Package eventlog defines the extension lifecycle audit Entry entity.
package eventlog

import (
	"time"

	"github.com/xraph/annex/id"
)

// Event names a lifecycle transition.
type Event string

const (
	EventInstalled       Event = "installed"
	EventEnabled         Event = "enabled"
	EventDisabled        Event = "disabled"
	EventUninstalled     Event = "uninstalled"
	EventSettingsUpdated Event = "settings_updated"
	EventUpgraded        Event = "upgraded"
)

// Entry is a single lifecycle audit record. Entries outlive the extension
// they describe.
type Entry struct {
	ID             id.EventID     `json:"id" db:"id"`
	ExtensionID    id.ExtensionID `json:"extension_id" db:"extension_id"`
	UserID         string         `json:"user_id" db:"user_id"`
	OrganizationID string         `json:"organization_id,omitempty" db:"organization_id"`
	Event          Event          `json:"event" db:"event"`
	Name           string         `json:"name" db:"name"`
	Version        string         `json:"version" db:"version"`
	Actor          string         `json:"actor,omitempty" db:"actor"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying lifecycle events.
type QueryFilter struct {
	ExtensionID    id.ExtensionID `json:"extension_id,omitzero"`
	UserID         string         `json:"user_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Event          Event          `json:"event,omitempty"`
	After          *time.Time     `json:"after,omitempty"`
	Before         *time.Time     `json:"before,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	Offset         int            `json:"offset,omitempty"`
}

// Match reports whether e satisfies every set field of f.
func (f *QueryFilter) Match(e *Entry) bool {
	if f == nil {
		return true
	}
	if !f.ExtensionID.IsNil() && e.ExtensionID.String() != f.ExtensionID.String() {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.After != nil && !e.CreatedAt.After(*f.After) {
		return false
	}
	if f.Before != nil && !e.CreatedAt.Before(*f.Before) {
		return false
	}
	return true
}
