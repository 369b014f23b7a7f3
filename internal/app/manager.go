package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/woxQAQ/jsbridge/internal/host"
	"github.com/woxQAQ/jsbridge/internal/wasm"
	"go.uber.org/zap"
)

// Manager manages app lifecycle.
type Manager struct {
	paths       []string
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new app manager discovering apps under paths.
func NewManager(
	paths []string,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctionsImpl,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		paths:       paths,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, hostFuncs, logger),
		logger:      logger.With(zap.String("component", "app-manager")),
	}
}

// LoadAll discovers and loads all apps from the configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("apps already loaded")
	}

	m.logger.Info("Loading apps",
		zap.Strings("paths", m.paths),
	)

	apps, err := m.loader.DiscoverApps(ctx, m.paths)
	if err != nil {
		// An empty app path is not fatal; running an app then fails with
		// AppNotFoundError.
		var none *NoAppsFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No apps found in configured paths",
				zap.Strings("paths", m.paths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, app := range apps {
		if err := m.registry.Register(app); err != nil {
			m.logger.Error("Failed to register app",
				zap.String("name", app.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Apps loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// GetApp retrieves an app by name.
func (m *Manager) GetApp(name string) (*App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.registry.Get(name)
	if !ok {
		return nil, &AppNotFoundError{AppName: name, Loaded: m.loadedNames()}
	}

	return app, nil
}

// Instantiate creates a new instance of an app whose routines run in h.
// Guest stdout and stderr go to the given writers; nil discards.
func (m *Manager) Instantiate(ctx context.Context, appName string, h *host.Host, stdout, stderr io.Writer) (*wasm.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.registry.Get(appName)
	if !ok {
		return nil, &AppNotFoundError{AppName: appName, Loaded: m.loadedNames()}
	}

	config := &wasm.InstanceConfig{
		ModuleName: app.Compiled.Name,
		// InstanceID will be auto-generated
		Host:   h,
		Stdout: stdout,
		Stderr: stderr,
		Args:   app.Manifest.Args,
	}

	return m.instanceMgr.Instantiate(ctx, config)
}

// Shutdown gracefully shuts down all apps.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down app manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("App manager shutdown complete")
	return nil
}

// Registry returns the app registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether apps have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// loadedNames lists registered app names. Callers hold m.mu.
func (m *Manager) loadedNames() []string {
	apps := m.registry.List()
	names := make([]string, len(apps))
	for i, a := range apps {
		names[i] = a.Name()
	}
	return names
}
