package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/jsbridge/internal/wasm"
	"go.uber.org/zap/zaptest"
)

func newTestRuntime(t *testing.T) *wasm.Runtime {
	t.Helper()
	ctx := context.Background()
	runtime, err := wasm.NewRuntime(ctx, zaptest.NewLogger(t), wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { runtime.Close(ctx) })
	return runtime
}

func TestLoader_LoadApp_Valid(t *testing.T) {
	ctx := context.Background()
	runtime := newTestRuntime(t)
	loader := NewLoader(runtime, zaptest.NewLogger(t))
	dir := writeApp(t, t.TempDir(), "tiktok", validManifest, guestBytes())

	app, err := loader.LoadApp(ctx, dir)
	if err != nil {
		t.Fatalf("LoadApp() failed: %v", err)
	}

	if app.Name() != "tiktok" {
		t.Errorf("expected name 'tiktok', got '%s'", app.Name())
	}
	if app.Version() != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", app.Version())
	}
	if app.Entry() != DefaultEntry {
		t.Errorf("expected entry '%s', got '%s'", DefaultEntry, app.Entry())
	}
	if app.LoadedAt.IsZero() {
		t.Error("LoadedAt should be set")
	}

	// The compiled module is cached under the app name.
	if _, ok := runtime.GetCompiledModule("tiktok"); !ok {
		t.Error("compiled module should be cached as 'tiktok'")
	}
}

func TestLoader_LoadApp_ManifestNotFound(t *testing.T) {
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))

	_, err := loader.LoadApp(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if _, ok := err.(*ManifestNotFoundError); !ok {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestLoader_LoadApp_InvalidWasm(t *testing.T) {
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))
	dir := writeApp(t, t.TempDir(), "broken", validManifest, []byte("not wasm"))

	_, err := loader.LoadApp(context.Background(), dir)
	var loadErr *AppLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected AppLoadError, got %T", err)
	}
	if loadErr.Stage != "compile module" {
		t.Errorf("Stage = %q, want compile module", loadErr.Stage)
	}
	var compileErr *wasm.CompilationError
	if !errors.As(err, &compileErr) {
		t.Errorf("expected wrapped CompilationError, got %v", err)
	}
}

func TestLoader_LoadApp_NotAGuest(t *testing.T) {
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))
	dir := writeApp(t, t.TempDir(), "plain", validManifest, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	_, err := loader.LoadApp(context.Background(), dir)
	var missing *wasm.FunctionNotFoundError
	if !errors.As(err, &missing) {
		t.Fatalf("expected FunctionNotFoundError, got %v", err)
	}
}

func TestLoader_DiscoverApps(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))
	root := t.TempDir()

	writeApp(t, root, "tiktok", validManifest, guestBytes())
	writeApp(t, root, "clock", "name: clock\nversion: 2.0.0\nwasm:\n  file: app.wasm\n", guestBytes())
	writeApp(t, root, "broken", "name: broken\n", guestBytes())

	apps, err := loader.DiscoverApps(ctx, []string{root, filepath.Join(root, "does-not-exist")})
	if err != nil {
		t.Fatalf("DiscoverApps() failed: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(apps))
	}
}

func TestLoader_DiscoverApps_AppDirectory(t *testing.T) {
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))
	dir := writeApp(t, t.TempDir(), "tiktok", validManifest, guestBytes())

	apps, err := loader.DiscoverApps(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("DiscoverApps() failed: %v", err)
	}
	if len(apps) != 1 || apps[0].Name() != "tiktok" {
		t.Fatalf("expected the tiktok app, got %v", apps)
	}
}

func TestLoader_DiscoverApps_NoneFound(t *testing.T) {
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))

	_, err := loader.DiscoverApps(context.Background(), []string{t.TempDir()})
	if _, ok := err.(*NoAppsFoundError); !ok {
		t.Errorf("expected NoAppsFoundError, got %T", err)
	}
}

func TestLoader_DiscoverApps_OnlyFailures(t *testing.T) {
	loader := NewLoader(newTestRuntime(t), zaptest.NewLogger(t))
	root := t.TempDir()
	writeApp(t, root, "broken", "name: broken\n", nil)

	_, err := loader.DiscoverApps(context.Background(), []string{root})
	var validationErr *ManifestValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected the load failure, got %v", err)
	}
}
