// Package annex is a manifest-driven extension subsystem. It validates
// third-party extension manifests, installs them for a user or
// organization, manages their lifecycle (enable, disable, uninstall,
// upgrade), applies schema-constrained settings, and gives every installed
// extension a scoped key-value store.
//
// The Engine is stateless apart from its store handle: every operation is a
// single atomic call against the configured backend, so one Engine can
// serve concurrent requests.
//
//	eng, err := annex.NewEngine(annex.WithStore(memory.New()))
//	ext, err := eng.InstallExtension(ctx, manifestJSON, annex.InstallParams{
//	    UserID: "u1",
//	    Source: extension.SourceCustom,
//	})
//	err = eng.SetStorageValue(ctx, ext.ID, "cursor", map[string]int{"page": 2})
package annex

import "github.com/xraph/annex/extension"

// InstallParams describes who owns a new installation and where it came
// from. An empty UserID falls back to the owner carried by the context.
type InstallParams struct {
	UserID         string           `json:"user_id"`
	OrganizationID string           `json:"organization_id,omitempty"`
	Source         extension.Source `json:"installation_source"`
}
