// Package session wires the wasm runtime, the app manager and a script
// host into runs of guest apps.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/woxQAQ/jsbridge/internal/app"
	"github.com/woxQAQ/jsbridge/internal/config"
	"github.com/woxQAQ/jsbridge/internal/host"
	"github.com/woxQAQ/jsbridge/internal/script"
	"github.com/woxQAQ/jsbridge/internal/wasm"
	"go.uber.org/zap"
)

type Session struct {
	cfg         *config.Config
	logger      *zap.Logger
	wasmRuntime *wasm.Runtime
	apps        *app.Manager
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	// Initialize Wasm runtime.
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:      cfg.Wasm.MemoryPages,
		DebugEnabled:     cfg.Wasm.Debug,
		CacheDir:         cfg.Wasm.CacheDir,
		MaxInstances:     cfg.Wasm.MaxInstances,
		ExecutionTimeout: cfg.Wasm.ExecutionTimeout,
	}

	wasmRuntime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	hostFuncs := wasm.NewHostFunctions(wasmRuntime, logger)
	apps := app.NewManager(cfg.AppPaths, wasmRuntime, hostFuncs, logger)
	if err := apps.LoadAll(ctx); err != nil {
		wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to load apps: %w", err)
	}

	logger.Info("Session initialized",
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
		zap.Int("apps", apps.Registry().Count()),
	)

	return &Session{
		cfg:         cfg,
		logger:      logger,
		wasmRuntime: wasmRuntime,
		apps:        apps,
	}, nil
}

// Apps lists the loaded apps sorted by name.
func (s *Session) Apps() []*app.App {
	return s.apps.Registry().List()
}

// Close gracefully shuts down the session.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Info("Shutting down session")

	if err := s.apps.Shutdown(ctx); err != nil {
		return err
	}

	s.logger.Info("Session shutdown complete")
	return nil
}

// RunOptions tune a single app run.
type RunOptions struct {
	// Guest stdout and stderr. Nil uses the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// Clock drives the event loop. Nil uses the wall clock.
	Clock host.Clock
}

// Report describes a finished run.
type Report struct {
	App        string
	Version    string
	InstanceID string

	// Entry is the time spent in the entry export.
	Entry time.Duration
	Loop  host.Summary
	Host  host.Stats

	// LiveObjects counts host objects the guest never released.
	LiveObjects int
}

// Run instantiates an app, calls its entry export and runs the event
// loop until it is idle. A partial report is returned with the error when
// the entry call or the loop fails.
func (s *Session) Run(ctx context.Context, name string, opts RunOptions) (*Report, error) {
	a, err := s.apps.GetApp(name)
	if err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	logger := s.logger.With(zap.String("app", a.Name()))

	engine, err := s.newEngine(a, logger)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	h := host.New(engine, logger)
	inst, err := s.apps.Instantiate(ctx, a.Name(), h, opts.Stdout, opts.Stderr)
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)

	report := &Report{
		App:        a.Name(),
		Version:    a.Version(),
		InstanceID: inst.ID,
	}
	finish := func(err error) (*Report, error) {
		report.Host = h.Stats()
		if live, liveErr := engine.Live(); liveErr == nil {
			report.LiveObjects = live
		}
		return report, err
	}

	logger.Info("Starting app", zap.String("entry", a.Entry()), zap.String("instance_id", inst.ID))

	started := time.Now()
	_, err = inst.Call(ctx, a.Entry())
	report.Entry = time.Since(started)
	if err != nil {
		return finish(fmt.Errorf("entry %s: %w", a.Entry(), err))
	}

	loop := host.NewLoop(h, opts.Clock, host.LoopConfig{
		MaxEvents:   s.cfg.Host.MaxEvents,
		IdleTimeout: s.cfg.Host.IdleTimeout,
	}, logger)
	report.Loop, err = loop.Run(ctx, inst)
	if err != nil {
		return finish(fmt.Errorf("event loop: %w", err))
	}

	logger.Info("App finished",
		zap.Int("events", report.Loop.Events),
		zap.Int("timers", report.Loop.Timers),
		zap.Duration("elapsed", report.Loop.Elapsed),
	)
	return finish(nil)
}

// newEngine creates a script engine with the configured and the app's
// preload scripts evaluated, in that order.
func (s *Session) newEngine(a *app.App, logger *zap.Logger) (*script.Engine, error) {
	engine, err := script.New(logger)
	if err != nil {
		return nil, err
	}

	paths := append([]string{}, s.cfg.Host.Preload...)
	paths = append(paths, a.Manifest.PreloadPaths()...)
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("failed to read preload %s: %w", p, err)
		}
		if err := engine.Load(p, string(src)); err != nil {
			engine.Close()
			return nil, err
		}
		logger.Debug("Preloaded script", zap.String("path", p))
	}
	return engine, nil
}

// Check loads the app in dir without running it: the manifest is
// validated and the module compiled and checked against the host ABI.
func Check(ctx context.Context, dir string, logger *zap.Logger) (*app.App, error) {
	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		return nil, err
	}
	defer runtime.Close(ctx)

	return app.NewLoader(runtime, logger).LoadApp(ctx, dir)
}
