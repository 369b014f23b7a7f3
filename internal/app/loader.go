package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/woxQAQ/jsbridge/internal/wasm"
	"go.uber.org/zap"
)

// Loader handles loading apps from disk.
type Loader struct {
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new app loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "app-loader")),
	}
}

// LoadApp loads a single app from a directory.
func (l *Loader) LoadApp(ctx context.Context, dir string) (*App, error) {
	l.logger.Debug("Loading app", zap.String("dir", dir))

	// Parse manifest
	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading app",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("entry", manifest.Entry),
	)

	data, err := os.ReadFile(manifest.WasmPath())
	if err != nil {
		return nil, &AppLoadError{AppName: manifest.Name, Stage: "read module", Err: err}
	}

	// Compiled modules are cached under the app name, which is what
	// instances are created from.
	compiled, err := l.moduleLoader.LoadModuleFromMemory(ctx, manifest.Name, data)
	if err != nil {
		return nil, &AppLoadError{
			AppName: manifest.Name,
			Stage:   "compile module",
			Err:     err,
		}
	}

	app := &App{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("App loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return app, nil
}

// DiscoverApps scans directories for apps. A path that holds a manifest
// itself is loaded as one app; otherwise each subdirectory is tried.
func (l *Loader) DiscoverApps(ctx context.Context, paths []string) ([]*App, error) {
	var apps []*App
	var errs []error

	load := func(dir string) {
		app, err := l.LoadApp(ctx, dir)
		if err != nil {
			l.logger.Error("Failed to load app",
				zap.String("dir", dir),
				zap.Error(err),
			)
			errs = append(errs, err)
			return
		}
		apps = append(apps, app)
	}

	for _, basePath := range paths {
		l.logger.Debug("Scanning app directory", zap.String("path", basePath))

		if _, err := os.Stat(filepath.Join(basePath, ManifestFile)); err == nil {
			load(basePath)
			continue
		}

		// Read subdirectories
		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("App path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(basePath, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
				continue
			}
			load(dir)
		}
	}

	// If we found some apps but had errors, log warning but continue
	if len(apps) > 0 && len(errs) > 0 {
		l.logger.Warn("Some apps failed to load",
			zap.Int("loaded", len(apps)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(apps) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, &NoAppsFoundError{Paths: paths}
	}

	return apps, nil
}
