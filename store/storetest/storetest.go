// Package storetest is a conformance suite for store.Store backends.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/storage"
	"github.com/xraph/annex/store"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises every store.Store method against the backend built by
// newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ExtensionCRUD", testExtensionCRUD},
		{"ListFilters", testListFilters},
		{"SetActive", testSetActive},
		{"SettingsValues", testSettingsValues},
		{"ReplaceManifest", testReplaceManifest},
		{"DeleteCascades", testDeleteCascades},
		{"DeleteSystemRefused", testDeleteSystemRefused},
		{"StorageUpsert", testStorageUpsert},
		{"StorageRequiresExtension", testStorageRequiresExtension},
		{"Events", testEvents},
		{"ConcurrentToggle", testConcurrentToggle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewExtension builds an extension record for tests.
func NewExtension(userID, orgID string, source extension.Source, configurable bool) *extension.Extension {
	m := &manifest.Manifest{
		Name:        "Weather",
		Version:     "1.0.0",
		Author:      manifest.Author{Name: "Acme"},
		Type:        manifest.TypeAPI,
		EntryPoints: manifest.EntryPoints{Main: "index.js"},
		Permissions: []manifest.Permission{manifest.PermNetwork},
		Hooks:       []manifest.Hook{},
	}
	if configurable {
		m.Settings = &manifest.Settings{
			Configurable: true,
			Schema: map[string]manifest.SettingDef{
				"city": {Type: manifest.SettingString},
			},
		}
	}
	return extension.New(m, userID, orgID, source)
}

func mustCreate(t *testing.T, s store.Store, e *extension.Extension) *extension.Extension {
	t.Helper()
	if err := s.CreateExtension(context.Background(), e); err != nil {
		t.Fatalf("CreateExtension: %v", err)
	}
	return e
}

func testExtensionCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "org1", extension.SourceCustom, true))

	if e.CreatedAt.IsZero() || !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Fatalf("timestamps not stamped: %v / %v", e.CreatedAt, e.UpdatedAt)
	}

	got, err := s.GetExtension(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != e.ID.String() || got.Name != "Weather" || got.Version != "1.0.0" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Type != manifest.TypeAPI || len(got.Permissions) != 1 || got.Permissions[0] != manifest.PermNetwork {
		t.Fatalf("manifest fields not persisted: %+v", got)
	}
	if !got.IsActive || got.IsSystem || got.Source != extension.SourceCustom {
		t.Fatalf("lifecycle fields not persisted: %+v", got)
	}
	if got.UserID != "u1" || got.OrganizationID != "org1" {
		t.Fatalf("ownership not persisted: %+v", got)
	}
	if !got.Settings.Configurable || got.Settings.Schema["city"].Type != manifest.SettingString {
		t.Fatalf("settings not persisted: %+v", got.Settings)
	}

	// Mutating the returned record must not leak into the store.
	got.Name = "changed"
	again, err := s.GetExtension(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Name != "Weather" {
		t.Fatal("store returned an aliased record")
	}

	_, err = s.GetExtension(ctx, id.NewExtensionID())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))
	mustCreate(t, s, NewExtension("u1", "org1", extension.SourceMarketplace, false))
	mustCreate(t, s, NewExtension("u2", "org1", extension.SourceSystem, false))

	count := func(f *extension.ListFilter) int {
		t.Helper()
		list, err := s.ListExtensions(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		n, err := s.CountExtensions(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if int64(len(list)) != n && (f == nil || (f.Limit == 0 && f.Offset == 0)) {
			t.Fatalf("list/count mismatch: %d vs %d", len(list), n)
		}
		return len(list)
	}

	if n := count(nil); n != 3 {
		t.Errorf("unfiltered: got %d, want 3", n)
	}
	if n := count(&extension.ListFilter{UserID: "u1"}); n != 2 {
		t.Errorf("by user: got %d, want 2", n)
	}
	if n := count(&extension.ListFilter{OrganizationID: "org1"}); n != 2 {
		t.Errorf("by org: got %d, want 2", n)
	}
	if n := count(&extension.ListFilter{UserID: "u1", OrganizationID: "org1"}); n != 1 {
		t.Errorf("by user and org: got %d, want 1", n)
	}
	if n := count(&extension.ListFilter{Source: extension.SourceSystem}); n != 1 {
		t.Errorf("by source: got %d, want 1", n)
	}
	if n := count(&extension.ListFilter{Limit: 2}); n != 2 {
		t.Errorf("limit: got %d, want 2", n)
	}
	if n := count(&extension.ListFilter{Offset: 2}); n != 1 {
		t.Errorf("offset: got %d, want 1", n)
	}

	if _, _, err := s.SetExtensionActive(ctx, a.ID, false); err != nil {
		t.Fatal(err)
	}
	inactive := false
	if n := count(&extension.ListFilter{IsActive: &inactive}); n != 1 {
		t.Errorf("by inactive: got %d, want 1", n)
	}

	list, err := s.ListExtensions(ctx, &extension.ListFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if list[0].ID.String() != a.ID.String() {
		t.Error("list should be ordered oldest first")
	}
}

func testSetActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))
	before, err := s.GetExtension(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}

	got, changed, err := s.SetExtensionActive(ctx, e.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if changed || !got.IsActive || !got.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("no-op enable changed state: changed=%v %+v", changed, got)
	}

	time.Sleep(2 * time.Millisecond)
	got, changed, err = s.SetExtensionActive(ctx, e.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || got.IsActive || !got.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("disable did not apply: changed=%v %+v", changed, got)
	}

	if _, _, err := s.SetExtensionActive(ctx, id.NewExtensionID(), true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSettingsValues(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, true))

	got, err := s.SetExtensionSettingsValues(ctx, e.ID, manifest.Values{"city": manifest.String("Oslo")})
	if err != nil {
		t.Fatal(err)
	}
	if v := got.Settings.Values["city"]; !v.Equal(manifest.String("Oslo")) {
		t.Fatalf("values = %v", got.Settings.Values)
	}

	// Full replace, not a merge.
	got, err = s.SetExtensionSettingsValues(ctx, e.ID, manifest.Values{"units": manifest.StringList("metric")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Settings.Values["city"]; ok {
		t.Fatalf("values were merged: %v", got.Settings.Values)
	}

	reread, err := s.GetExtension(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v := reread.Settings.Values["units"]; !v.Equal(manifest.StringList("metric")) {
		t.Fatalf("persisted values = %v", reread.Settings.Values)
	}

	locked := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))
	_, err = s.SetExtensionSettingsValues(ctx, locked.ID, manifest.Values{"x": manifest.Bool(true)})
	if !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	reread, err = s.GetExtension(ctx, locked.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reread.Settings.Values) != 0 {
		t.Fatalf("rejected update leaked values: %v", reread.Settings.Values)
	}

	_, err = s.SetExtensionSettingsValues(ctx, id.NewExtensionID(), manifest.Values{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testReplaceManifest(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, true))
	if _, _, err := s.SetExtensionActive(ctx, e.ID, false); err != nil {
		t.Fatal(err)
	}

	next := e.Clone()
	m := next.Manifest()
	m.Version = "1.1.0"
	m.Permissions = append(m.Permissions, manifest.PermStorage)
	next.ApplyManifest(m)
	next.Settings.Values = manifest.Values{"city": manifest.String("Bergen")}

	got, err := s.ReplaceExtensionManifest(ctx, next, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.1.0" || len(got.Permissions) != 2 {
		t.Fatalf("manifest not replaced: %+v", got)
	}
	if got.IsActive {
		t.Fatal("replacing the manifest must not touch the active flag")
	}
	if v := got.Settings.Values["city"]; !v.Equal(manifest.String("Bergen")) {
		t.Fatalf("values = %v", got.Settings.Values)
	}

	if _, err := s.ReplaceExtensionManifest(ctx, next, "1.0.0"); !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("stale version: expected ErrConditionFailed, got %v", err)
	}

	next.ID = id.NewExtensionID()
	if _, err := s.ReplaceExtensionManifest(ctx, next, "1.1.0"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func putItem(t *testing.T, s store.Store, extID id.ExtensionID, key string, v any) *storage.Item {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	item := &storage.Item{ExtensionID: extID, Key: key, Value: data}
	if err := s.UpsertStorageItem(context.Background(), item); err != nil {
		t.Fatalf("UpsertStorageItem(%s): %v", key, err)
	}
	return item
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))
	other := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))
	putItem(t, s, e.ID, "k1", 1)
	putItem(t, s, e.ID, "k2", "two")
	putItem(t, s, other.ID, "k1", true)

	if err := s.DeleteExtension(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetExtension(ctx, e.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("record survived delete: %v", err)
	}
	for _, k := range []string{"k1", "k2"} {
		if _, err := s.GetStorageItem(ctx, e.ID, k); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("item %s survived delete: %v", k, err)
		}
	}
	if _, err := s.GetStorageItem(ctx, other.ID, "k1"); err != nil {
		t.Fatalf("delete removed another extension's item: %v", err)
	}

	if err := s.DeleteExtension(ctx, e.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testDeleteSystemRefused(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceSystem, false))
	putItem(t, s, e.ID, "k", 1)

	if err := s.DeleteExtension(ctx, e.ID); !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	if _, err := s.GetExtension(ctx, e.ID); err != nil {
		t.Fatalf("system record removed: %v", err)
	}
	if _, err := s.GetStorageItem(ctx, e.ID, "k"); err != nil {
		t.Fatalf("system storage removed: %v", err)
	}
}

func testStorageUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))

	putItem(t, s, e.ID, "cursor", map[string]any{"page": 1})
	first, err := s.GetStorageItem(ctx, e.ID, "cursor")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Millisecond)
	written := putItem(t, s, e.ID, "cursor", map[string]any{"page": 2})
	if !written.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("overwrite stamped a new CreatedAt on the item: %v -> %v", first.CreatedAt, written.CreatedAt)
	}
	second, err := s.GetStorageItem(ctx, e.ID, "cursor")
	if err != nil {
		t.Fatal(err)
	}

	var v struct{ Page int }
	if err := json.Unmarshal(second.Value, &v); err != nil || v.Page != 2 {
		t.Fatalf("value = %s, %v", second.Value, err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("overwrite changed CreatedAt: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("overwrite did not bump UpdatedAt: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	items, err := s.ListStorageItems(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("overwrite duplicated the key: %d items", len(items))
	}

	putItem(t, s, e.ID, "alpha", nil)
	items, err = s.ListStorageItems(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Key != "alpha" || items[1].Key != "cursor" {
		t.Fatalf("items not ordered by key: %+v", items)
	}

	if err := s.DeleteStorageItem(ctx, e.ID, "cursor"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteStorageItem(ctx, e.ID, "cursor"); err != nil {
		t.Fatalf("deleting a missing key must succeed: %v", err)
	}
	if _, err := s.GetStorageItem(ctx, e.ID, "cursor"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testStorageRequiresExtension(t *testing.T, s store.Store) {
	ctx := context.Background()
	ghost := id.NewExtensionID()

	err := s.UpsertStorageItem(ctx, &storage.Item{ExtensionID: ghost, Key: "k", Value: json.RawMessage(`1`)})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	items, err := s.ListStorageItems(ctx, ghost)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("orphan items created: %+v", items)
	}
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	extID := id.NewExtensionID()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	for i, evt := range []eventlog.Event{eventlog.EventInstalled, eventlog.EventDisabled, eventlog.EventEnabled} {
		err := s.CreateEvent(ctx, &eventlog.Entry{
			ID:          id.NewEventID(),
			ExtensionID: extID,
			UserID:      "u1",
			Event:       evt,
			Name:        "Weather",
			Version:     "1.0.0",
			Metadata:    map[string]any{"seq": float64(i)},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListEvents(ctx, &eventlog.QueryFilter{ExtensionID: extID})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Event != eventlog.EventEnabled {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[2].Metadata["seq"] != float64(0) {
		t.Errorf("metadata = %v", list[2].Metadata)
	}

	n, err := s.CountEvents(ctx, &eventlog.QueryFilter{Event: eventlog.EventDisabled})
	if err != nil || n != 1 {
		t.Fatalf("CountEvents = %d, %v", n, err)
	}

	purged, err := s.PurgeEvents(ctx, base.Add(90*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Fatalf("purged %d, want 2", purged)
	}
	n, err = s.CountEvents(ctx, nil)
	if err != nil || n != 1 {
		t.Fatalf("after purge CountEvents = %d, %v", n, err)
	}
}

func testConcurrentToggle(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, NewExtension("u1", "", extension.SourceCustom, false))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(active bool) {
			defer wg.Done()
			if _, _, err := s.SetExtensionActive(ctx, e.ID, active); err != nil {
				errs <- fmt.Errorf("toggle %v: %w", active, err)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if _, err := s.GetExtension(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
}
