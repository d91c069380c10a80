package annex

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/store/memory"
)

func weatherManifest(version string) map[string]any {
	return map[string]any{
		"name":        "Weather",
		"version":     version,
		"description": "Forecasts in your workspace",
		"author":      map[string]any{"name": "Acme", "email": "dev@acme.io"},
		"type":        "slack",
		"entryPoints": map[string]any{"main": "index.js"},
		"permissions": []any{"network", "slack:write"},
		"settings": map[string]any{
			"configurable": true,
			"schema": map[string]any{
				"city":  map[string]any{"type": "string", "required": true},
				"days":  map[string]any{"type": "number", "default": 3},
				"units": map[string]any{"type": "select", "options": []any{map[string]any{"label": "Metric", "value": "metric"}, map[string]any{"label": "Imperial", "value": "imperial"}}},
			},
		},
	}
}

func plainManifest(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"version":     "1.0.0",
		"author":      map[string]any{"name": "Acme"},
		"type":        "api",
		"entryPoints": map[string]any{"main": "index.js"},
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func install(t *testing.T, eng *Engine, raw any, p InstallParams) *extension.Extension {
	t.Helper()
	ext, err := eng.InstallExtension(context.Background(), raw, p)
	if err != nil {
		t.Fatalf("InstallExtension: %v", err)
	}
	return ext
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestWeatherLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1", Source: extension.SourceMarketplace})
	if !ext.IsActive || ext.IsSystem {
		t.Fatalf("expected active non-system extension, got %+v", ext)
	}
	if ext.ID.Prefix() != id.PrefixExtension {
		t.Errorf("id prefix = %q", ext.ID.Prefix())
	}
	if len(ext.Settings.Values) != 0 {
		t.Errorf("new extension has values: %v", ext.Settings.Values)
	}

	if _, err := eng.DisableExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	got, err := eng.GetExtension(ctx, ext.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Fatal("expected inactive after disable")
	}

	updated, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{"city": manifest.String("Lisbon")})
	if err != nil {
		t.Fatal(err)
	}
	if v := updated.Settings.Values["city"]; !v.Equal(manifest.String("Lisbon")) {
		t.Errorf("city = %v", v)
	}

	if err := eng.SetStorageValue(ctx, ext.ID, "lastForecast", map[string]any{"temp": 21}); err != nil {
		t.Fatal(err)
	}
	raw, ok, err := eng.GetStorageValue(ctx, ext.ID, "lastForecast")
	if err != nil || !ok {
		t.Fatalf("GetStorageValue: ok=%v err=%v", ok, err)
	}
	if string(raw) != `{"temp":21}` {
		t.Errorf("stored value = %s", raw)
	}

	if err := eng.UninstallExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.GetExtension(ctx, ext.ID); !errors.Is(err, ErrExtensionNotFound) {
		t.Fatalf("expected not found after uninstall, got %v", err)
	}
	keys, err := eng.ListStorageKeys(ctx, ext.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("storage survived uninstall: %v", keys)
	}
}

func TestInstall_InvalidManifestWritesNothing(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	raw := weatherManifest("1.0")
	_, err := eng.InstallExtension(ctx, raw, InstallParams{UserID: "u1"})
	if !errors.Is(err, ErrValidation) || KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	issues := IssuesOf(err)
	if len(issues) == 0 || issues[0].Path != "version" {
		t.Errorf("issues = %v", issues)
	}

	n, err := eng.CountExtensions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("invalid install persisted %d records", n)
	}
}

func TestInstall_Params(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	if _, err := eng.InstallExtension(ctx, plainManifest("A"), InstallParams{}); KindOf(err) != KindValidation {
		t.Fatalf("missing user: expected validation error, got %v", err)
	}
	if _, err := eng.InstallExtension(ctx, plainManifest("A"), InstallParams{UserID: "u1", Source: "sideload"}); KindOf(err) != KindValidation {
		t.Fatalf("bad source: expected validation error, got %v", err)
	}

	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})
	if ext.Source != extension.SourceCustom {
		t.Errorf("default source = %q", ext.Source)
	}

	ctx = WithOwner(ctx, "u2", "org1")
	ext, err := eng.InstallExtension(ctx, plainManifest("B"), InstallParams{})
	if err != nil {
		t.Fatal(err)
	}
	if ext.UserID != "u2" || ext.OrganizationID != "org1" {
		t.Errorf("owner from context not applied: %+v", ext)
	}
}

func TestInstall_SystemSource(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	ext := install(t, eng, plainManifest("Core"), InstallParams{UserID: "admin", Source: extension.SourceSystem})
	if !ext.IsSystem {
		t.Fatal("system source must mark the extension as system")
	}

	err := eng.UninstallExtension(ctx, ext.ID)
	if !errors.Is(err, ErrSystemExtensionProtected) {
		t.Fatalf("expected protected error, got %v", err)
	}
	if _, err := eng.GetExtension(ctx, ext.ID); err != nil {
		t.Fatalf("system extension removed: %v", err)
	}

	// Disabling a system extension is allowed.
	if _, err := eng.DisableExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
}

func TestEnableDisable_Idempotent(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	for range 2 {
		if _, err := eng.EnableExtension(ctx, ext.ID); err != nil {
			t.Fatal(err)
		}
	}
	for range 2 {
		got, err := eng.DisableExtension(ctx, ext.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.IsActive {
			t.Fatal("expected inactive")
		}
	}

	events, err := eng.ListEvents(ctx, &eventlog.QueryFilter{ExtensionID: ext.ID})
	if err != nil {
		t.Fatal(err)
	}
	var enabled, disabled int
	for _, ev := range events {
		switch ev.Event {
		case eventlog.EventEnabled:
			enabled++
		case eventlog.EventDisabled:
			disabled++
		}
	}
	if enabled != 0 || disabled != 1 {
		t.Errorf("enabled=%d disabled=%d, want 0 and 1", enabled, disabled)
	}
}

func TestLifecycle_UnknownExtension(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	missing := id.NewExtensionID()

	checks := map[string]error{
		"enable":    func() error { _, err := eng.EnableExtension(ctx, missing); return err }(),
		"disable":   func() error { _, err := eng.DisableExtension(ctx, missing); return err }(),
		"uninstall": eng.UninstallExtension(ctx, missing),
		"settings":  func() error { _, err := eng.UpdateExtensionSettings(ctx, missing, nil); return err }(),
		"storage":   eng.SetStorageValue(ctx, missing, "k", 1),
		"upgrade":   func() error { _, err := eng.UpgradeExtension(ctx, missing, plainManifest("A")); return err }(),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrExtensionNotFound) {
			t.Errorf("%s: expected not found, got %v", name, err)
		}
	}

	// Reads and deletes of unknown storage are not errors.
	if _, ok, err := eng.GetStorageValue(ctx, missing, "k"); ok || err != nil {
		t.Errorf("GetStorageValue: ok=%v err=%v", ok, err)
	}
	if err := eng.DeleteStorageValue(ctx, missing, "k"); err != nil {
		t.Errorf("DeleteStorageValue: %v", err)
	}
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1"})

	_, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{"city": manifest.Number(1)})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if issues := IssuesOf(err); len(issues) != 1 || issues[0].Path != "values.city" {
		t.Errorf("issues = %v", issues)
	}

	if _, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{
		"city":  manifest.String("Porto"),
		"units": manifest.String("metric"),
	}); err != nil {
		t.Fatal(err)
	}

	// Full replace drops units.
	got, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{"city": manifest.String("Faro")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Settings.Values["units"]; ok {
		t.Error("expected units removed by full replace")
	}

	// The manifest-derived schema is untouched by settings writes.
	if len(got.Settings.Schema) != 3 || !got.Settings.Configurable {
		t.Errorf("schema changed: %+v", got.Settings)
	}
}

func TestUpdateSettings_Map(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1"})

	var body map[string]any
	if err := json.Unmarshal([]byte(`{"city":"Braga","days":5}`), &body); err != nil {
		t.Fatal(err)
	}
	got, err := eng.UpdateExtensionSettingsMap(ctx, ext.ID, body)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Settings.Values["days"].Equal(manifest.Number(5)) {
		t.Errorf("days = %v", got.Settings.Values["days"])
	}

	_, err = eng.UpdateExtensionSettingsMap(ctx, ext.ID, map[string]any{"city": map[string]any{}})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateSettings_NotConfigurable(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	_, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{})
	if !errors.Is(err, ErrNotConfigurable) {
		t.Fatalf("expected not configurable, got %v", err)
	}
}

func TestUpdateSettings_Permissive(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.PermissiveSettings = true
	eng, _ := newTestEngine(t, WithConfig(cfg))
	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1"})

	got, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{"color": manifest.String("red")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Settings.Values["color"]; !ok {
		t.Error("permissive mode dropped an undeclared key")
	}
}

func TestUpdateSettings_NonFiniteNumbers(t *testing.T) {
	ctx := context.Background()
	permissive := DefaultConfig()
	permissive.PermissiveSettings = true

	for _, tt := range []struct {
		name string
		opts []Option
	}{
		{"strict", nil},
		{"permissive", []Option{WithConfig(permissive)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newTestEngine(t, tt.opts...)
			ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1"})

			bad := []manifest.Values{
				{"city": manifest.String("Oslo"), "days": manifest.Number(math.Inf(1))},
				{"city": manifest.String("Oslo"), "days": manifest.Number(math.NaN())},
				{"city": manifest.String("Oslo"), "days": {}},
			}
			for _, values := range bad {
				_, err := eng.UpdateExtensionSettings(ctx, ext.ID, values)
				if KindOf(err) != KindValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				if !hasIssuePath(IssuesOf(err), "values.days") {
					t.Errorf("expected issue at values.days, got %v", IssuesOf(err))
				}
			}

			_, err := eng.UpdateExtensionSettingsMap(ctx, ext.ID, map[string]any{"city": "Oslo", "days": math.Inf(-1)})
			if KindOf(err) != KindValidation {
				t.Errorf("map input: expected validation error, got %v", err)
			}

			got, err := eng.GetExtension(ctx, ext.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Settings.Values) != 0 {
				t.Errorf("rejected values were stored: %v", got.Settings.Values)
			}
		})
	}
}

func hasIssuePath(issues []manifest.Issue, path string) bool {
	for _, is := range issues {
		if is.Path == path {
			return true
		}
	}
	return false
}

func TestStorage_Keys(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	bad := []string{"", strings.Repeat("k", 256), string([]byte{0xff, 0xfe})}
	for _, key := range bad {
		if err := eng.SetStorageValue(ctx, ext.ID, key, 1); KindOf(err) != KindValidation {
			t.Errorf("key %q: expected validation error, got %v", key, err)
		}
	}
	if err := eng.SetStorageValue(ctx, ext.ID, strings.Repeat("k", 255), 1); err != nil {
		t.Errorf("255-byte key: %v", err)
	}

	for _, key := range []string{"b", "a", "c"} {
		if err := eng.SetStorageValue(ctx, ext.ID, key, key); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.DeleteStorageValue(ctx, ext.ID, "c"); err != nil {
		t.Fatal(err)
	}
	keys, err := eng.ListStorageKeys(ctx, ext.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("keys = %v", keys)
	}
}

func TestStorage_Values(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	if err := eng.SetStorageValue(ctx, ext.ID, "raw", json.RawMessage(`[1,2]`)); err != nil {
		t.Fatal(err)
	}
	if err := eng.SetStorageValue(ctx, ext.ID, "bytes", []byte(`{"a":true}`)); err != nil {
		t.Fatal(err)
	}
	if err := eng.SetStorageValue(ctx, ext.ID, "broken", json.RawMessage(`{`)); KindOf(err) != KindValidation {
		t.Errorf("invalid raw JSON: expected validation error, got %v", err)
	}
	if err := eng.SetStorageValue(ctx, ext.ID, "chan", make(chan int)); KindOf(err) != KindValidation {
		t.Errorf("unmarshalable value: expected validation error, got %v", err)
	}

	if err := eng.SetStorageValue(ctx, ext.ID, "raw", "replaced"); err != nil {
		t.Fatal(err)
	}
	got, _, err := eng.GetStorageValue(ctx, ext.ID, "raw")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `"replaced"` {
		t.Errorf("raw = %s", got)
	}
}

func TestStorage_Isolation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	a := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})
	b := install(t, eng, plainManifest("B"), InstallParams{UserID: "u1"})

	if err := eng.SetStorageValue(ctx, a.ID, "k", "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := eng.GetStorageValue(ctx, b.ID, "k"); ok {
		t.Error("storage leaked across extensions")
	}

	if err := eng.UninstallExtension(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := eng.GetStorageValue(ctx, a.ID, "k"); !ok {
		t.Error("uninstalling B removed A's storage")
	}
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1", OrganizationID: "org1"})
	if _, err := eng.DisableExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{
		"city":  manifest.String("Lisbon"),
		"units": manifest.String("imperial"),
	}); err != nil {
		t.Fatal(err)
	}

	next := weatherManifest("1.1.0")
	schema := next["settings"].(map[string]any)["schema"].(map[string]any)
	schema["units"] = map[string]any{"type": "select", "options": []any{map[string]any{"label": "Metric", "value": "metric"}}}

	got, err := eng.UpgradeExtension(ctx, ext.ID, next)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.1.0" {
		t.Errorf("version = %q", got.Version)
	}
	if got.IsActive || got.OrganizationID != "org1" || got.Source != ext.Source {
		t.Errorf("upgrade changed lifecycle or ownership: %+v", got)
	}
	if _, ok := got.Settings.Values["units"]; ok {
		t.Error("incompatible value survived upgrade")
	}
	if !got.Settings.Values["city"].Equal(manifest.String("Lisbon")) {
		t.Error("compatible value dropped by upgrade")
	}

	events, err := eng.ListEvents(ctx, &eventlog.QueryFilter{ExtensionID: ext.ID, Event: eventlog.EventUpgraded})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Metadata["previous_version"] != "1.0.0" {
		t.Errorf("upgrade events = %+v", events)
	}
}

func TestUpgrade_Rejects(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, weatherManifest("1.2.0"), InstallParams{UserID: "u1"})

	renamed := weatherManifest("2.0.0")
	renamed["name"] = "Climate"
	retyped := weatherManifest("2.0.0")
	retyped["type"] = "chrome"

	tests := []struct {
		name string
		raw  map[string]any
		path string
	}{
		{"same version", weatherManifest("1.2.0"), "version"},
		{"downgrade", weatherManifest("1.1.9"), "version"},
		{"renamed", renamed, "name"},
		{"retyped", retyped, "type"},
		{"invalid", weatherManifest("x"), "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.UpgradeExtension(ctx, ext.ID, tt.raw)
			if KindOf(err) != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			var found bool
			for _, is := range IssuesOf(err) {
				if is.Path == tt.path {
					found = true
				}
			}
			if !found {
				t.Errorf("expected issue at %q, got %v", tt.path, IssuesOf(err))
			}
		})
	}
}

func TestEvents(t *testing.T) {
	ctx := WithOwner(context.Background(), "actor1", "")
	eng, _ := newTestEngine(t)
	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1"})

	if _, err := eng.DisableExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{"city": manifest.String("x")}); err != nil {
		t.Fatal(err)
	}
	if err := eng.UninstallExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}

	events, err := eng.ListEvents(ctx, &eventlog.QueryFilter{ExtensionID: ext.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	seen := map[eventlog.Event]*eventlog.Entry{}
	for _, ev := range events {
		seen[ev.Event] = ev
	}
	for _, want := range []eventlog.Event{eventlog.EventInstalled, eventlog.EventDisabled, eventlog.EventSettingsUpdated, eventlog.EventUninstalled} {
		if seen[want] == nil {
			t.Errorf("missing %s event", want)
		}
	}
	if u := seen[eventlog.EventUninstalled]; u != nil && (u.Actor != "actor1" || u.Name != "Weather") {
		t.Errorf("uninstall event = %+v", u)
	}

	n, err := eng.PurgeEvents(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("purged %d, want 4", n)
	}
}

func TestEvents_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.DisableEventLog = true
	eng, _ := newTestEngine(t, WithConfig(cfg))
	install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	events, err := eng.ListEvents(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestStart_PurgesExpiredEvents(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.EventRetention = time.Hour
	eng, s := newTestEngine(t, WithConfig(cfg))

	old := &eventlog.Entry{ID: id.NewEventID(), ExtensionID: id.NewExtensionID(), Event: eventlog.EventInstalled, CreatedAt: time.Now().UTC().Add(-2 * time.Hour)}
	if err := s.CreateEvent(ctx, old); err != nil {
		t.Fatal(err)
	}
	install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	events, err := eng.ListEvents(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event != eventlog.EventInstalled || events[0].ID.String() == old.ID.String() {
		t.Errorf("events after start = %+v", events)
	}
}

func TestListExtensions_Filters(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})
	b := install(t, eng, plainManifest("B"), InstallParams{UserID: "u1", OrganizationID: "org1"})
	install(t, eng, plainManifest("C"), InstallParams{UserID: "u2", OrganizationID: "org1"})
	if _, err := eng.DisableExtension(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	count := func(f *extension.ListFilter) int {
		t.Helper()
		list, err := eng.ListExtensions(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		return len(list)
	}
	active := true
	if n := count(nil); n != 3 {
		t.Errorf("all = %d", n)
	}
	if n := count(&extension.ListFilter{UserID: "u1"}); n != 2 {
		t.Errorf("u1 = %d", n)
	}
	if n := count(&extension.ListFilter{OrganizationID: "org1"}); n != 2 {
		t.Errorf("org1 = %d", n)
	}
	if n := count(&extension.ListFilter{UserID: "u1", IsActive: &active}); n != 1 {
		t.Errorf("u1 active = %d", n)
	}
}

func TestConcurrentToggles(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = eng.EnableExtension(ctx, ext.ID)
			} else {
				_, err = eng.DisableExtension(ctx, ext.ID)
			}
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	got, err := eng.GetExtension(ctx, ext.ID)
	if err != nil {
		t.Fatal(err)
	}
	events, err := eng.ListEvents(ctx, &eventlog.QueryFilter{ExtensionID: ext.ID})
	if err != nil {
		t.Fatal(err)
	}
	// Only real transitions are recorded and they alternate starting from
	// active, so the counts determine the final state.
	var enabled, disabled int
	for _, ev := range events {
		switch ev.Event {
		case eventlog.EventEnabled:
			enabled++
		case eventlog.EventDisabled:
			disabled++
		}
	}
	if disabled != enabled && disabled != enabled+1 {
		t.Fatalf("enabled=%d disabled=%d do not alternate", enabled, disabled)
	}
	if got.IsActive != (disabled == enabled) {
		t.Errorf("is_active=%v disagrees with %d enables and %d disables", got.IsActive, enabled, disabled)
	}
}

func TestUninstallRacesStorageWrites(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ext := install(t, eng, plainManifest("A"), InstallParams{UserID: "u1"})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := eng.SetStorageValue(ctx, ext.ID, "k", i)
			if err != nil && !errors.Is(err, ErrExtensionNotFound) {
				t.Error(err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.UninstallExtension(ctx, ext.ID); err != nil {
			t.Error(err)
		}
	}()
	wg.Wait()

	keys, err := eng.ListStorageKeys(ctx, ext.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("orphaned storage after uninstall: %v", keys)
	}
}

func TestErrorRendering(t *testing.T) {
	extID := id.NewExtensionID()
	err := validationError("install", extID, "invalid manifest", []manifest.Issue{
		{Path: "version", Message: "bad"},
		{Path: "type", Message: "bad"},
	}, nil)
	msg := err.Error()
	if !strings.Contains(msg, extID.String()) || !strings.Contains(msg, "version: bad") || !strings.Contains(msg, "and 1 more") {
		t.Errorf("message = %q", msg)
	}
	if KindStorage.Retryable() != true || KindValidation.Retryable() {
		t.Error("unexpected retryable classification")
	}
	if KindOf(errors.New("x")) != "" {
		t.Error("KindOf on foreign error")
	}
}
