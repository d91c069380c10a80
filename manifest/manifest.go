// Package manifest defines the extension manifest document and validates
// untrusted manifests before they reach the registry.
//
// Validation runs an embedded JSON Schema (structure, closed enums, the
// MAJOR.MINOR.PATCH version pattern, email and URI formats) followed by a
// semantic pass over the settings schema. [Parse] is the strict entry point
// used before persistence; [Validate] collects every violation for display.
package manifest

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// Type is the closed set of extension kinds.
type Type string

const (
	TypeSlack      Type = "slack"
	TypeChrome     Type = "chrome"
	TypeSalesforce Type = "salesforce"
	TypeAPI        Type = "api"
)

// Types lists every valid extension Type.
func Types() []Type {
	return []Type{TypeSlack, TypeChrome, TypeSalesforce, TypeAPI}
}

// IsValid reports whether t is a known extension type.
func (t Type) IsValid() bool { return slices.Contains(Types(), t) }

// UnmarshalText rejects values outside the closed set.
func (t *Type) UnmarshalText(b []byte) error {
	v := Type(b)
	if !v.IsValid() {
		return fmt.Errorf("manifest: unknown extension type %q", string(b))
	}
	*t = v
	return nil
}

// Permission is a capability an extension requests.
type Permission string

const (
	PermStorage             Permission = "storage"
	PermNetwork             Permission = "network"
	PermSlackRead           Permission = "slack:read"
	PermSlackWrite          Permission = "slack:write"
	PermSalesforceRead      Permission = "salesforce:read"
	PermSalesforceWrite     Permission = "salesforce:write"
	PermChromeTabs          Permission = "chrome:tabs"
	PermChromeStorage       Permission = "chrome:storage"
	PermChromeNotifications Permission = "chrome:notifications"
)

// Permissions lists every valid Permission.
func Permissions() []Permission {
	return []Permission{
		PermStorage, PermNetwork,
		PermSlackRead, PermSlackWrite,
		PermSalesforceRead, PermSalesforceWrite,
		PermChromeTabs, PermChromeStorage, PermChromeNotifications,
	}
}

// IsValid reports whether p is a known permission.
func (p Permission) IsValid() bool { return slices.Contains(Permissions(), p) }

// UnmarshalText rejects values outside the closed set.
func (p *Permission) UnmarshalText(b []byte) error {
	v := Permission(b)
	if !v.IsValid() {
		return fmt.Errorf("manifest: unknown permission %q", string(b))
	}
	*p = v
	return nil
}

// SettingType is the declared type of a configurable setting.
type SettingType string

const (
	SettingString  SettingType = "string"
	SettingNumber  SettingType = "number"
	SettingBoolean SettingType = "boolean"
	SettingSelect  SettingType = "select"
)

// SettingTypes lists every valid SettingType.
func SettingTypes() []SettingType {
	return []SettingType{SettingString, SettingNumber, SettingBoolean, SettingSelect}
}

// IsValid reports whether st is a known setting type.
func (st SettingType) IsValid() bool { return slices.Contains(SettingTypes(), st) }

// UnmarshalText rejects values outside the closed set.
func (st *SettingType) UnmarshalText(b []byte) error {
	v := SettingType(b)
	if !v.IsValid() {
		return fmt.Errorf("manifest: unknown setting type %q", string(b))
	}
	*st = v
	return nil
}

// Author identifies who published the extension.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

// EntryPoints names the files the host loads for the extension.
type EntryPoints struct {
	Main       string `json:"main"`
	Settings   string `json:"settings,omitempty"`
	Background string `json:"background,omitempty"`
}

// Option is one choice of a select setting.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SettingDef declares one user-editable setting.
type SettingDef struct {
	Type        SettingType `json:"type"`
	Description string      `json:"description,omitempty"`
	Default     *Value      `json:"default,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Options     []Option    `json:"options,omitempty"`
}

// HasOption reports whether v is one of the declared option values.
func (d SettingDef) HasOption(v string) bool {
	for _, o := range d.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Settings is the configurable-settings block of a manifest.
type Settings struct {
	Configurable bool                  `json:"configurable"`
	Schema       map[string]SettingDef `json:"schema"`
}

// Hook is declarative event metadata. Hooks are recorded, never dispatched.
type Hook struct {
	Event   string `json:"event"`
	Handler string `json:"handler"`
}

// Manifest is a validated extension manifest.
type Manifest struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Author      Author       `json:"author"`
	Type        Type         `json:"type"`
	EntryPoints EntryPoints  `json:"entryPoints"`
	Permissions []Permission `json:"permissions"`
	Settings    *Settings    `json:"settings,omitempty"`
	Hooks       []Hook       `json:"hooks"`
}

// SemVer parses the manifest version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("manifest: version %q: %w", m.Version, err)
	}
	return v, nil
}

// HasPermission reports whether the manifest requests p.
func (m *Manifest) HasPermission(p Permission) bool {
	return slices.Contains(m.Permissions, p)
}

// normalize fills the documented defaults for optional collections.
func (m *Manifest) normalize() {
	if m.Permissions == nil {
		m.Permissions = []Permission{}
	}
	if m.Hooks == nil {
		m.Hooks = []Hook{}
	}
	if m.Settings != nil && m.Settings.Schema == nil {
		m.Settings.Schema = map[string]SettingDef{}
	}
}
