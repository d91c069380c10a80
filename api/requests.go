package api

import "encoding/json"

// ──────────────────────────────────────────────────
// Extension requests
// ──────────────────────────────────────────────────

// ValidateManifestRequest is the body for a dry-run manifest validation.
type ValidateManifestRequest struct {
	Manifest map[string]any `json:"manifest" description:"Extension manifest document"`
}

// InstallExtensionRequest is the body for installing an extension.
type InstallExtensionRequest struct {
	Manifest           map[string]any `json:"manifest" description:"Extension manifest document"`
	UserID             string         `json:"user_id,omitempty" description:"Owning user (default: caller)"`
	OrganizationID     string         `json:"organization_id,omitempty" description:"Owning organization (default: caller scope)"`
	InstallationSource string         `json:"installation_source,omitempty" description:"marketplace, custom or system (default: custom)"`
}

// GetExtensionRequest is the path parameter for addressing an extension.
type GetExtensionRequest struct {
	ExtensionID string `path:"extensionId" description:"Extension ID"`
}

// ListExtensionsRequest holds query parameters for listing extensions.
type ListExtensionsRequest struct {
	UserID             string `query:"user_id" description:"Filter by owning user"`
	OrganizationID     string `query:"organization_id" description:"Filter by owning organization"`
	Active             string `query:"active" description:"Filter by active state (true/false)"`
	Type               string `query:"type" description:"Filter by extension type"`
	InstallationSource string `query:"installation_source" description:"Filter by installation source"`
	Limit              int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset             int    `query:"offset" description:"Results to skip"`
}

// UpdateSettingsRequest is the body for replacing settings values.
type UpdateSettingsRequest struct {
	Values map[string]any `json:"values" description:"Complete set of settings values; omitted keys are removed"`
}

// UpgradeExtensionRequest is the body for upgrading an extension.
type UpgradeExtensionRequest struct {
	Manifest map[string]any `json:"manifest" description:"Manifest of the newer version"`
}

// ──────────────────────────────────────────────────
// Storage requests
// ──────────────────────────────────────────────────

// StorageKeyRequest is the path parameters for addressing a storage key.
type StorageKeyRequest struct {
	ExtensionID string `path:"extensionId" description:"Extension ID"`
	Key         string `path:"key" description:"Storage key"`
}

// SetStorageValueRequest is the body for writing a storage key.
type SetStorageValueRequest struct {
	Value json.RawMessage `json:"value" description:"Any JSON value"`
}

// ──────────────────────────────────────────────────
// Event requests
// ──────────────────────────────────────────────────

// ListEventsRequest holds query parameters for listing lifecycle events.
type ListEventsRequest struct {
	Event  string `query:"event" description:"Filter by event name"`
	After  string `query:"after" description:"Only events after this RFC 3339 time"`
	Before string `query:"before" description:"Only events before this RFC 3339 time"`
	Limit  int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset int    `query:"offset" description:"Results to skip"`
}
