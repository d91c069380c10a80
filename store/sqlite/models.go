package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/storage"
)

// ──────────────────────────────────────────────────
// Extension model
// ──────────────────────────────────────────────────

type extensionModel struct {
	grove.BaseModel      `grove:"table:annex_extensions"`
	ID                   string    `grove:"id,pk"`
	UserID               string    `grove:"user_id,notnull"`
	OrganizationID       string    `grove:"organization_id,notnull"`
	Name                 string    `grove:"name,notnull"`
	Description          string    `grove:"description"`
	Version              string    `grove:"version,notnull"`
	Type                 string    `grove:"type,notnull"`
	InstallationSource   string    `grove:"installation_source,notnull"`
	IsActive             bool      `grove:"is_active,notnull"`
	IsSystem             bool      `grove:"is_system,notnull"`
	SettingsConfigurable bool      `grove:"settings_configurable,notnull"`
	Manifest             string    `grove:"manifest,notnull"`        // JSON text
	SettingsValues       string    `grove:"settings_values,notnull"` // JSON text
	CreatedAt            time.Time `grove:"created_at,notnull"`
	UpdatedAt            time.Time `grove:"updated_at,notnull"`
}

func extensionToModel(e *extension.Extension) (*extensionModel, error) {
	doc, err := json.Marshal(e.Manifest())
	if err != nil {
		return nil, fmt.Errorf("marshal extension manifest: %w", err)
	}
	values, err := marshalValues(e.Settings.Values)
	if err != nil {
		return nil, err
	}
	return &extensionModel{
		ID:                   e.ID.String(),
		UserID:               e.UserID,
		OrganizationID:       e.OrganizationID,
		Name:                 e.Name,
		Description:          e.Description,
		Version:              e.Version,
		Type:                 string(e.Type),
		InstallationSource:   string(e.Source),
		IsActive:             e.IsActive,
		IsSystem:             e.IsSystem,
		SettingsConfigurable: e.Settings.Configurable,
		Manifest:             string(doc),
		SettingsValues:       values,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}, nil
}

func extensionFromModel(m *extensionModel) (*extension.Extension, error) {
	eid, _ := id.ParseExtensionID(m.ID) //nolint:errcheck // stored IDs are always valid
	var doc manifest.Manifest
	if err := json.Unmarshal([]byte(m.Manifest), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal extension manifest: %w", err)
	}
	values := manifest.Values{}
	if m.SettingsValues != "" {
		if err := json.Unmarshal([]byte(m.SettingsValues), &values); err != nil {
			return nil, fmt.Errorf("unmarshal settings values: %w", err)
		}
	}
	e := &extension.Extension{
		ID:             eid,
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		IsActive:       m.IsActive,
		IsSystem:       m.IsSystem,
		Source:         extension.Source(m.InstallationSource),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	e.ApplyManifest(&doc)
	e.Settings.Values = values
	return e, nil
}

func marshalValues(v manifest.Values) (string, error) {
	if v == nil {
		v = manifest.Values{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal settings values: %w", err)
	}
	return string(data), nil
}

// ──────────────────────────────────────────────────
// Storage item model
// ──────────────────────────────────────────────────

type storageItemModel struct {
	grove.BaseModel `grove:"table:annex_storage"`
	ExtensionID     string    `grove:"extension_id,pk"`
	Key             string    `grove:"key,pk"`
	Value           string    `grove:"value,notnull"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func storageItemToModel(i *storage.Item) *storageItemModel {
	return &storageItemModel{
		ExtensionID: i.ExtensionID.String(),
		Key:         i.Key,
		Value:       string(i.Value),
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func storageItemFromModel(m *storageItemModel) *storage.Item {
	eid, _ := id.ParseExtensionID(m.ExtensionID) //nolint:errcheck // stored IDs are always valid
	return &storage.Item{
		ExtensionID: eid,
		Key:         m.Key,
		Value:       json.RawMessage(m.Value),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Event model
// ──────────────────────────────────────────────────

type eventModel struct {
	grove.BaseModel `grove:"table:annex_events"`
	ID              string    `grove:"id,pk"`
	ExtensionID     string    `grove:"extension_id,notnull"`
	UserID          string    `grove:"user_id,notnull"`
	OrganizationID  string    `grove:"organization_id,notnull"`
	Event           string    `grove:"event,notnull"`
	Name            string    `grove:"name,notnull"`
	Version         string    `grove:"version,notnull"`
	Actor           string    `grove:"actor"`
	Metadata        string    `grove:"metadata"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func eventToModel(e *eventlog.Entry) (*eventModel, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal event metadata: %w", err)
	}
	return &eventModel{
		ID:             e.ID.String(),
		ExtensionID:    e.ExtensionID.String(),
		UserID:         e.UserID,
		OrganizationID: e.OrganizationID,
		Event:          string(e.Event),
		Name:           e.Name,
		Version:        e.Version,
		Actor:          e.Actor,
		Metadata:       string(metadata),
		CreatedAt:      e.CreatedAt,
	}, nil
}

func eventFromModel(m *eventModel) (*eventlog.Entry, error) {
	evid, _ := id.ParseEventID(m.ID)               //nolint:errcheck // stored IDs are always valid
	extID, _ := id.ParseExtensionID(m.ExtensionID) //nolint:errcheck // stored IDs are always valid
	var metadata map[string]any
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return &eventlog.Entry{
		ID:             evid,
		ExtensionID:    extID,
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		Event:          eventlog.Event(m.Event),
		Name:           m.Name,
		Version:        m.Version,
		Actor:          m.Actor,
		Metadata:       metadata,
		CreatedAt:      m.CreatedAt,
	}, nil
}
