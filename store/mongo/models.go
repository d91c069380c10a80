package mongo

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
	ID                   string         `grove:"id,pk"                 bson:"_id"`
	UserID               string         `grove:"user_id"               bson:"user_id"`
	OrganizationID       string         `grove:"organization_id"       bson:"organization_id"`
	Name                 string         `grove:"name"                  bson:"name"`
	Description          string         `grove:"description"           bson:"description"`
	Version              string         `grove:"version"               bson:"version"`
	Type                 string         `grove:"type"                  bson:"type"`
	InstallationSource   string         `grove:"installation_source"   bson:"installation_source"`
	IsActive             bool           `grove:"is_active"             bson:"is_active"`
	IsSystem             bool           `grove:"is_system"             bson:"is_system"`
	SettingsConfigurable bool           `grove:"settings_configurable" bson:"settings_configurable"`
	Manifest             string         `grove:"manifest"              bson:"manifest"`        // JSON text
	SettingsValues       string         `grove:"settings_values"       bson:"settings_values"` // JSON text
	CreatedAt            time.Time      `grove:"created_at"            bson:"created_at"`
	UpdatedAt            time.Time      `grove:"updated_at"            bson:"updated_at"`
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
	ID              string    `grove:"id,pk"        bson:"_id"`
	ExtensionID     string    `grove:"extension_id" bson:"extension_id"`
	Key             string    `grove:"key"          bson:"key"`
	Value           string    `grove:"value"        bson:"value"` // JSON text
	CreatedAt       time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"   bson:"updated_at"`
}

// storageItemID derives the document key. Extension IDs never contain a
// slash, so the pair is unambiguous.
func storageItemID(extID id.ExtensionID, key string) string {
	return extID.String() + "/" + key
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
	ID              string         `grove:"id,pk"           bson:"_id"`
	ExtensionID     string         `grove:"extension_id"    bson:"extension_id"`
	UserID          string         `grove:"user_id"         bson:"user_id"`
	OrganizationID  string         `grove:"organization_id" bson:"organization_id"`
	Event           string         `grove:"event"           bson:"event"`
	Name            string         `grove:"name"            bson:"name"`
	Version         string         `grove:"version"         bson:"version"`
	Actor           string         `grove:"actor"           bson:"actor,omitempty"`
	Metadata        map[string]any `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"      bson:"created_at"`
}

func eventToModel(e *eventlog.Entry) *eventModel {
	return &eventModel{
		ID:             e.ID.String(),
		ExtensionID:    e.ExtensionID.String(),
		UserID:         e.UserID,
		OrganizationID: e.OrganizationID,
		Event:          string(e.Event),
		Name:           e.Name,
		Version:        e.Version,
		Actor:          e.Actor,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt,
	}
}

func eventFromModel(m *eventModel) *eventlog.Entry {
	evid, _ := id.ParseEventID(m.ID)               //nolint:errcheck // stored IDs are always valid
	extID, _ := id.ParseExtensionID(m.ExtensionID) //nolint:errcheck // stored IDs are always valid
	return &eventlog.Entry{
		ID:             evid,
		ExtensionID:    extID,
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		Event:          eventlog.Event(m.Event),
		Name:           m.Name,
		Version:        m.Version,
		Actor:          m.Actor,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}
