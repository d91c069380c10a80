package postgres

import (
	"testing"
	"time"

	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/store/storetest"
)

func TestExtensionModelRoundTrip(t *testing.T) {
	e := storetest.NewExtension("u1", "org1", extension.SourceSystem, true)
	e.IsActive = false
	e.Settings.Values = manifest.Values{"mode": manifest.String("fast")}
	e.CreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.UpdatedAt = e.CreatedAt

	m, err := extensionToModel(e)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != e.ID.String() || m.InstallationSource != "system" || !m.SettingsConfigurable {
		t.Fatalf("unexpected model: %+v", m)
	}

	got, err := extensionFromModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != e.ID.String() || got.IsActive || !got.IsSystem || got.OrganizationID != "org1" {
		t.Errorf("lifecycle fields lost: %+v", got)
	}
	if got.Name != e.Name || got.Version != e.Version || got.Type != e.Type {
		t.Errorf("manifest fields lost: %+v", got)
	}
	if len(got.Settings.Schema) != len(e.Settings.Schema) {
		t.Errorf("schema = %+v", got.Settings.Schema)
	}
	if !got.Settings.Values["mode"].Equal(manifest.String("fast")) {
		t.Errorf("values = %v", got.Settings.Values)
	}
}
