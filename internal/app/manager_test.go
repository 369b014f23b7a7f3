package app

import (
	"context"
	"testing"

	"github.com/woxQAQ/jsbridge/internal/host"
	"github.com/woxQAQ/jsbridge/internal/script"
	"github.com/woxQAQ/jsbridge/internal/wasm"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, paths ...string) *Manager {
	t.Helper()
	runtime := newTestRuntime(t)
	logger := zaptest.NewLogger(t)
	return NewManager(paths, runtime, wasm.NewHostFunctions(runtime, logger), logger)
}

func TestManager_NewManager(t *testing.T) {
	manager := newTestManager(t, t.TempDir())

	if manager.IsLoaded() {
		t.Error("Manager should not be loaded initially")
	}
}

func TestManager_GetApp_NotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetApp("nonexistent")
	if _, ok := err.(*AppNotFoundError); !ok {
		t.Errorf("expected AppNotFoundError, got %T", err)
	}
	if want := "app 'nonexistent' is not loaded (no apps loaded)"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestManager_LoadAll(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeApp(t, root, "tiktok", validManifest, guestBytes())
	manager := newTestManager(t, root)

	if err := manager.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}
	if manager.Registry().Count() != 1 {
		t.Errorf("expected 1 app, got %d", manager.Registry().Count())
	}

	if err := manager.LoadAll(ctx); err == nil {
		t.Error("second LoadAll() should fail")
	}

	app, err := manager.GetApp("tiktok")
	if err != nil {
		t.Fatalf("GetApp() failed: %v", err)
	}
	if app.Name() != "tiktok" {
		t.Errorf("unexpected app %s", app.Name())
	}
}

func TestManager_LoadAll_Empty(t *testing.T) {
	manager := newTestManager(t, t.TempDir())

	if err := manager.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll() should tolerate empty paths: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}
}

func TestManager_Instantiate(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	root := t.TempDir()
	writeApp(t, root, "tiktok", validManifest, guestBytes())
	manager := newTestManager(t, root)
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}

	engine, err := script.New(logger)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	inst, err := manager.Instantiate(ctx, "tiktok", host.New(engine, logger), nil, nil)
	if err != nil {
		t.Fatalf("Instantiate() failed: %v", err)
	}
	defer inst.Close(ctx)

	version, err := inst.ABIVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != protocol.Version {
		t.Errorf("ABIVersion() = %d, want %d", version, protocol.Version)
	}

	if _, err := manager.Instantiate(ctx, "nope", host.New(engine, logger), nil, nil); err == nil {
		t.Error("Instantiate() should fail for unknown app")
	}
}

func TestManager_Shutdown(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
}
