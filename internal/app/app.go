package app

import (
	"time"

	"github.com/woxQAQ/jsbridge/internal/wasm"
)

// App represents a loaded guest app with its manifest and compiled Wasm module.
type App struct {
	// Manifest is the parsed app metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the app was loaded
	LoadedAt time.Time
}

// Name returns the app name.
func (a *App) Name() string {
	return a.Manifest.Name
}

// Version returns the app version.
func (a *App) Version() string {
	return a.Manifest.Version
}

// Entry returns the export that starts the app.
func (a *App) Entry() string {
	return a.Manifest.Entry
}
