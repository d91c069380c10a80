// Package extension defines the installed Extension entity and its store
// interface.
package extension

import (
	"fmt"
	"slices"
	"time"

	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
)

// Source records how an extension was installed.
type Source string

const (
	SourceMarketplace Source = "marketplace"
	SourceCustom      Source = "custom"
	SourceSystem      Source = "system"
)

// Sources lists every valid Source.
func Sources() []Source {
	return []Source{SourceMarketplace, SourceCustom, SourceSystem}
}

// IsValid reports whether s is a known installation source.
func (s Source) IsValid() bool { return slices.Contains(Sources(), s) }

// UnmarshalText rejects values outside the closed set.
func (s *Source) UnmarshalText(b []byte) error {
	v, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSource converts s into a Source.
func ParseSource(s string) (Source, error) {
	v := Source(s)
	if !v.IsValid() {
		return "", fmt.Errorf("extension: unknown installation source %q", s)
	}
	return v, nil
}

// Settings is the configurable part of an installed extension. Values is
// only ever written through the settings manager.
type Settings struct {
	Configurable bool                           `json:"configurable"`
	Schema       map[string]manifest.SettingDef `json:"schema"`
	Values       manifest.Values                `json:"values,omitempty"`
}

// Extension is an installed plugin owned by a user and optionally an
// organization.
type Extension struct {
	ID             id.ExtensionID        `json:"id" db:"id"`
	UserID         string                `json:"user_id" db:"user_id"`
	OrganizationID string                `json:"organization_id,omitempty" db:"organization_id"`
	Name           string                `json:"name" db:"name"`
	Description    string                `json:"description,omitempty" db:"description"`
	Version        string                `json:"version" db:"version"`
	Type           manifest.Type         `json:"type" db:"type"`
	Author         manifest.Author       `json:"author" db:"author"`
	EntryPoints    manifest.EntryPoints  `json:"entry_points" db:"entry_points"`
	Permissions    []manifest.Permission `json:"permissions" db:"permissions"`
	Hooks          []manifest.Hook       `json:"hooks" db:"hooks"`
	Settings       Settings              `json:"settings" db:"settings"`
	IsActive       bool                  `json:"is_active" db:"is_active"`
	IsSystem       bool                  `json:"is_system" db:"is_system"`
	Source         Source                `json:"installation_source" db:"installation_source"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at" db:"updated_at"`
}

// New builds an active extension record from a validated manifest. System
// installs are flagged IsSystem.
func New(m *manifest.Manifest, userID, organizationID string, source Source) *Extension {
	e := &Extension{
		ID:             id.NewExtensionID(),
		UserID:         userID,
		OrganizationID: organizationID,
		IsActive:       true,
		IsSystem:       source == SourceSystem,
		Source:         source,
	}
	e.ApplyManifest(m)
	return e
}

// ApplyManifest copies the manifest-derived fields onto e. Settings values,
// lifecycle state, ownership and identity are left alone.
func (e *Extension) ApplyManifest(m *manifest.Manifest) {
	e.Name = m.Name
	e.Description = m.Description
	e.Version = m.Version
	e.Type = m.Type
	e.Author = m.Author
	e.EntryPoints = m.EntryPoints
	e.Permissions = append([]manifest.Permission{}, m.Permissions...)
	e.Hooks = append([]manifest.Hook{}, m.Hooks...)

	values := e.Settings.Values
	e.Settings = Settings{Schema: map[string]manifest.SettingDef{}}
	if m.Settings != nil {
		e.Settings.Configurable = m.Settings.Configurable
		e.Settings.Schema = cloneSchema(m.Settings.Schema)
	}
	e.Settings.Values = values
}

// Manifest reconstructs the manifest the record was installed from.
func (e *Extension) Manifest() *manifest.Manifest {
	m := &manifest.Manifest{
		Name:        e.Name,
		Version:     e.Version,
		Description: e.Description,
		Author:      e.Author,
		Type:        e.Type,
		EntryPoints: e.EntryPoints,
		Permissions: append([]manifest.Permission{}, e.Permissions...),
		Hooks:       append([]manifest.Hook{}, e.Hooks...),
	}
	if e.Settings.Configurable || len(e.Settings.Schema) > 0 {
		m.Settings = &manifest.Settings{
			Configurable: e.Settings.Configurable,
			Schema:       cloneSchema(e.Settings.Schema),
		}
	}
	return m
}

// Clone returns a deep copy of e.
func (e *Extension) Clone() *Extension {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Permissions = slices.Clone(e.Permissions)
	cp.Hooks = slices.Clone(e.Hooks)
	cp.Settings.Schema = cloneSchema(e.Settings.Schema)
	cp.Settings.Values = e.Settings.Values.Clone()
	return &cp
}

func cloneSchema(in map[string]manifest.SettingDef) map[string]manifest.SettingDef {
	out := make(map[string]manifest.SettingDef, len(in))
	for k, def := range in {
		def.Options = slices.Clone(def.Options)
		if def.Default != nil {
			d := *def.Default
			if list, ok := d.AsStringList(); ok {
				d = manifest.StringList(list...)
			}
			def.Default = &d
		}
		out[k] = def
	}
	return out
}

// OwnedBy reports whether the record is scoped to userID or organizationID.
// An empty organizationID never matches.
func (e *Extension) OwnedBy(userID, organizationID string) bool {
	if userID != "" && e.UserID == userID {
		return true
	}
	return organizationID != "" && e.OrganizationID == organizationID
}

// ListFilter contains filters for listing extensions. UserID and
// OrganizationID are combined with AND when both are set.
type ListFilter struct {
	UserID         string        `json:"user_id,omitempty"`
	OrganizationID string        `json:"organization_id,omitempty"`
	IsActive       *bool         `json:"is_active,omitempty"`
	Type           manifest.Type `json:"type,omitempty"`
	Source         Source        `json:"installation_source,omitempty"`
	Limit          int           `json:"limit,omitempty"`
	Offset         int           `json:"offset,omitempty"`
}

// Match reports whether e satisfies every set field of f. Pagination is
// ignored.
func (f *ListFilter) Match(e *Extension) bool {
	if f == nil {
		return true
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
		return false
	}
	if f.IsActive != nil && e.IsActive != *f.IsActive {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	return true
}
