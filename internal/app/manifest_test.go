package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/jsbridge/internal/wasm/wasmtest"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
)

// writeApp creates an app directory under root holding manifest and,
// unless wasm is nil, app.wasm.
func writeApp(t *testing.T, root, name, manifest string, wasm []byte) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if wasm != nil {
		if err := os.WriteFile(filepath.Join(dir, "app.wasm"), wasm, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func guestBytes() []byte {
	return wasmtest.Guest{ABI: int32(protocol.Version)}.Bytes()
}

const validManifest = `
name: tiktok
version: 1.0.0
description: prints tik then tok
wasm:
  file: app.wasm
args: [--fast]
`

func TestParseManifest_Valid(t *testing.T) {
	dir := writeApp(t, t.TempDir(), "tiktok", validManifest, guestBytes())

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Name != "tiktok" {
		t.Errorf("expected Name 'tiktok', got '%s'", manifest.Name)
	}

	if manifest.Version != "1.0.0" {
		t.Errorf("expected Version '1.0.0', got '%s'", manifest.Version)
	}

	if manifest.Entry != DefaultEntry {
		t.Errorf("expected default Entry '%s', got '%s'", DefaultEntry, manifest.Entry)
	}

	if manifest.ABIVersion != protocol.Version {
		t.Errorf("expected default ABIVersion %d, got %d", protocol.Version, manifest.ABIVersion)
	}

	if manifest.WasmPath() != filepath.Join(dir, "app.wasm") {
		t.Errorf("unexpected WasmPath %s", manifest.WasmPath())
	}

	if len(manifest.Args) != 1 || manifest.Args[0] != "--fast" {
		t.Errorf("unexpected Args %v", manifest.Args)
	}

	if manifest.Dir() != dir {
		t.Errorf("expected Dir %s, got %s", dir, manifest.Dir())
	}
}

func TestParseManifest_Preload(t *testing.T) {
	dir := writeApp(t, t.TempDir(), "dom", `
name: dom
version: 0.1.0
entry: main
wasm:
  file: app.wasm
preload: [shim.js]
`, guestBytes())
	if err := os.WriteFile(filepath.Join(dir, "shim.js"), []byte("globalThis.x = 1"), 0644); err != nil {
		t.Fatal(err)
	}

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Entry != "main" {
		t.Errorf("expected Entry 'main', got '%s'", manifest.Entry)
	}

	paths := manifest.PreloadPaths()
	if len(paths) != 1 || paths[0] != filepath.Join(dir, "shim.js") {
		t.Errorf("unexpected PreloadPaths %v", paths)
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	_, err := ParseManifest(filepath.Join(t.TempDir(), "nonexistent"))
	if err == nil {
		t.Fatal("ParseManifest() should fail for nonexistent directory")
	}

	if _, ok := err.(*ManifestNotFoundError); !ok {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	dir := writeApp(t, t.TempDir(), "bad", "name: [unterminated\n", nil)

	_, err := ParseManifest(dir)
	if _, ok := err.(*ManifestParseError); !ok {
		t.Errorf("expected ManifestParseError, got %T (%v)", err, err)
	}
}

func TestParseManifest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{
			name:     "missing name",
			manifest: "version: 1.0.0\nwasm:\n  file: app.wasm\n",
			field:    "name",
		},
		{
			name:     "bad name",
			manifest: "name: Tik Tok\nversion: 1.0.0\nwasm:\n  file: app.wasm\n",
			field:    "name",
		},
		{
			name:     "missing version",
			manifest: "name: tiktok\nwasm:\n  file: app.wasm\n",
			field:    "version",
		},
		{
			name:     "missing wasm file",
			manifest: "name: tiktok\nversion: 1.0.0\n",
			field:    "wasm.file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeApp(t, t.TempDir(), "app", tt.manifest, guestBytes())

			_, err := ParseManifest(dir)
			validationErr, ok := err.(*ManifestValidationError)
			if !ok {
				t.Fatalf("expected ManifestValidationError, got %T (%v)", err, err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("expected Field '%s', got '%s'", tt.field, validationErr.Field)
			}
		})
	}
}

func TestParseManifest_MissingFiles(t *testing.T) {
	root := t.TempDir()

	dir := writeApp(t, root, "nowasm", validManifest, nil)
	_, err := ParseManifest(dir)
	missing, ok := err.(*FileNotFoundError)
	if !ok {
		t.Fatalf("expected FileNotFoundError, got %T", err)
	}
	if missing.Field != "wasm.file" || missing.File != "app.wasm" {
		t.Errorf("unexpected error %+v", missing)
	}

	dir = writeApp(t, root, "nopreload", validManifest+"preload: [gone.js]\n", guestBytes())
	_, err = ParseManifest(dir)
	missing, ok = err.(*FileNotFoundError)
	if !ok {
		t.Fatalf("expected FileNotFoundError, got %T", err)
	}
	if missing.Field != "preload" || missing.File != "gone.js" {
		t.Errorf("unexpected error %+v", missing)
	}
}

func TestParseManifest_ABIVersion(t *testing.T) {
	dir := writeApp(t, t.TempDir(), "app", "name: tiktok\nversion: 1.0.0\nabi_version: 99\nwasm:\n  file: app.wasm\n", guestBytes())

	_, err := ParseManifest(dir)
	abiErr, ok := err.(*ABIVersionError)
	if !ok {
		t.Fatalf("expected ABIVersionError, got %T (%v)", err, err)
	}
	if abiErr.App != "tiktok" || abiErr.Declared != 99 || abiErr.Host != protocol.Version {
		t.Errorf("unexpected error %+v", abiErr)
	}
}

func TestParseManifest_ReservedEntry(t *testing.T) {
	for _, entry := range []string{protocol.ExportInitialize, protocol.ExportWakeFuture, protocol.ExportDispatchObject} {
		t.Run(entry, func(t *testing.T) {
			dir := writeApp(t, t.TempDir(), "app", validManifest+"entry: "+entry+"\n", guestBytes())

			_, err := ParseManifest(dir)
			entryErr, ok := err.(*EntryError)
			if !ok {
				t.Fatalf("expected EntryError, got %T (%v)", err, err)
			}
			if entryErr.Entry != entry {
				t.Errorf("Entry = %q, want %q", entryErr.Entry, entry)
			}
		})
	}
}
