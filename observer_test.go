package annex

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	return nil
}

func (r *recorder) OnExtensionInstalled(_ context.Context, e *extension.Extension) error {
	return r.add("installed:" + e.Name)
}

func (r *recorder) OnExtensionEnabled(_ context.Context, e *extension.Extension) error {
	return r.add("enabled:" + e.Name)
}

func (r *recorder) OnExtensionDisabled(_ context.Context, e *extension.Extension) error {
	return r.add("disabled:" + e.Name)
}

func (r *recorder) OnExtensionUninstalled(_ context.Context, e *extension.Extension) error {
	return r.add("uninstalled:" + e.Name)
}

func (r *recorder) OnSettingsUpdated(_ context.Context, e *extension.Extension) error {
	return r.add("settings:" + e.Name)
}

func (r *recorder) OnExtensionUpgraded(_ context.Context, e *extension.Extension, prev string) error {
	return r.add("upgraded:" + prev + "->" + e.Version)
}

func (r *recorder) OnStorageWritten(_ context.Context, _ id.ExtensionID, key string) error {
	return r.add("write:" + key)
}

func (r *recorder) OnStorageDeleted(_ context.Context, _ id.ExtensionID, key string) error {
	return r.add("delete:" + key)
}

func (r *recorder) OnShutdown(context.Context) error { return r.add("shutdown") }

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) OnExtensionInstalled(context.Context, *extension.Extension) error {
	return errors.New("boom")
}

func TestObservers(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	eng, _ := newTestEngine(t, WithObserver(failing{}), WithObserver(rec))

	ext := install(t, eng, weatherManifest("1.0.0"), InstallParams{UserID: "u1"})
	if _, err := eng.EnableExtension(ctx, ext.ID); err != nil { // no-op
		t.Fatal(err)
	}
	if _, err := eng.DisableExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.EnableExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.UpdateExtensionSettings(ctx, ext.ID, manifest.Values{"city": manifest.String("x")}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.UpgradeExtension(ctx, ext.ID, weatherManifest("2.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := eng.SetStorageValue(ctx, ext.ID, "k", true); err != nil {
		t.Fatal(err)
	}
	if err := eng.DeleteStorageValue(ctx, ext.ID, "k"); err != nil {
		t.Fatal(err)
	}
	if err := eng.UninstallExtension(ctx, ext.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"installed:Weather",
		"disabled:Weather",
		"enabled:Weather",
		"settings:Weather",
		"upgraded:1.0.0->2.0.0",
		"write:k",
		"delete:k",
		"uninstalled:Weather",
		"shutdown",
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v", rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, rec.calls[i], want[i])
		}
	}

	if n := len(eng.Observers().Observers()); n != 2 {
		t.Errorf("registered observers = %d", n)
	}
}

func TestObservers_FailedOperationEmitsNothing(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	eng, _ := newTestEngine(t, WithObserver(rec))

	if _, err := eng.InstallExtension(ctx, weatherManifest("bad"), InstallParams{UserID: "u1"}); err == nil {
		t.Fatal("expected error")
	}
	sys := install(t, eng, plainManifest("Core"), InstallParams{UserID: "u1", Source: extension.SourceSystem})
	if err := eng.UninstallExtension(ctx, sys.ID); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls = %v", rec.calls)
	}
}
