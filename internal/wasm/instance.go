package wasm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"github.com/woxQAQ/jsbridge/internal/host"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// InstanceManager creates and manages guest instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl

	// The env host module is shared by all instances.
	envOnce sync.Once
	envErr  error
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string

	// Host executing the routines this instance invokes.
	Host *host.Host

	// Guest stdout and stderr. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// Extra arguments passed to the guest's WASI environment.
	Args []string
}

// Instance is an instantiated guest module. It implements host.Guest.
type Instance struct {
	// wazero module instance.
	module api.Module
	memory *Memory
	host   *host.Host

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function

	timeout time.Duration
	debug   bool
	logger  *zap.Logger

	closeOnce sync.Once
	onClose   func()
}

var _ host.Guest = (*Instance)(nil)

// Instantiate creates a new instance from a compiled module, runs its
// WASI reactor initializer and checks its ABI version.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	// Get compiled module from cache.
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}
	if config.Host == nil {
		return nil, fmt.Errorf("instance of %s: no host", config.ModuleName)
	}

	// Generate instance ID if not provided.
	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateUUID()
	}

	m.logger.Info("Instantiating guest module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	if err := m.instantiateEnv(ctx); err != nil {
		return nil, err
	}

	instance := &Instance{
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		host:      config.Host,
		timeout:   m.runtime.config.ExecutionTimeout,
		debug:     m.runtime.config.DebugEnabled,
		logger:    m.logger.With(zap.String("instance_id", instanceID)),
		onClose:   func() { m.runtime.DeleteInstance(instanceID) },
	}
	// Host functions resolve their caller by instance ID, and
	// _initialize may already call them.
	if err := m.runtime.StoreInstance(instance); err != nil {
		return nil, err
	}

	// Reactors have no _start; _initialize is called explicitly below.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions().
		WithArgs(append([]string{config.ModuleName}, config.Args...)...).
		WithSysWalltime().
		WithSysNanotime()
	if config.Stdout != nil {
		moduleConfig = moduleConfig.WithStdout(config.Stdout)
	}
	if config.Stderr != nil {
		moduleConfig = moduleConfig.WithStderr(config.Stderr)
	}

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		m.runtime.DeleteInstance(instanceID)
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}
	instance.module = module
	instance.memory = NewMemory(module)
	instance.exports = m.cacheExportedFunctions(module)

	if init := module.ExportedFunction(protocol.ExportInitialize); init != nil {
		if _, err := instance.call(ctx, protocol.ExportInitialize, init); err != nil {
			instance.Close(ctx)
			return nil, &InstantiationError{ModuleName: config.ModuleName, InstanceID: instanceID, Err: err}
		}
	}

	version, err := instance.ABIVersion(ctx)
	if err != nil {
		instance.Close(ctx)
		return nil, err
	}
	if version != protocol.Version {
		instance.Close(ctx)
		return nil, &ABIMismatchError{ModuleName: config.ModuleName, Want: protocol.Version, Got: version}
	}

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(instance.exports)),
		zap.Uint32("abi_version", version),
	)

	return instance, nil
}

func (m *InstanceManager) instantiateEnv(ctx context.Context) error {
	m.envOnce.Do(func() {
		builder := m.runtime.runtime.NewHostModuleBuilder(protocol.ImportModule)
		if _, err := m.hostFuncs.Export(builder).Instantiate(ctx); err != nil {
			m.envErr = fmt.Errorf("failed to instantiate host module: %w", err)
		}
	})
	return m.envErr
}

// Close closes the instance and releases resources. Safe to call
// multiple times.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		if i.onClose != nil {
			i.onClose()
		}
		if i.module != nil {
			err = i.module.Close(ctx)
		}
	})
	return err
}

// Module returns the underlying wazero module.
func (i *Instance) Module() api.Module {
	return i.module
}

// cacheExportedFunctions caches references to the reentry exports.
// This improves performance by avoiding repeated lookups.
func (m *InstanceManager) cacheExportedFunctions(module api.Module) map[string]api.Function {
	exports := make(map[string]api.Function)

	names := make([]string, 0, len(requiredExports)+1)
	names = append(names, requiredExports...)
	names = append(names, protocol.ExportHandleCallback)
	for _, name := range names {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	return exports
}

func (i *Instance) export(name string) (api.Function, error) {
	if fn, ok := i.exports[name]; ok {
		return fn, nil
	}
	if fn := i.module.ExportedFunction(name); fn != nil {
		i.exports[name] = fn
		return fn, nil
	}
	return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
}

// call runs an export under the execution timeout. Nested calls made from
// host functions inherit the outer deadline.
func (i *Instance) call(ctx context.Context, name string, fn api.Function, params ...uint64) ([]uint64, error) {
	if i.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, i.timeout)
			defer cancel()
		}
	}

	if i.debug {
		i.logger.Debug("Calling guest export", zap.String("function", name), zap.Uint64s("params", params))
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		var exit *sys.ExitError
		if errors.As(err, &exit) && exit.ExitCode() == sys.ExitCodeDeadlineExceeded {
			return nil, &TimeoutError{Duration: i.timeout}
		}
		return nil, &CallError{InstanceID: i.ID, FunctionName: name, Err: err}
	}
	return results, nil
}

// Call invokes an export by name, e.g. the app entry point.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := i.export(name)
	if err != nil {
		return nil, err
	}
	return i.call(ctx, name, fn, params...)
}

func (i *Instance) call32(ctx context.Context, name string, params ...uint64) (uint32, error) {
	results, err := i.Call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, &CallError{InstanceID: i.ID, FunctionName: name, Err: fmt.Errorf("expected 1 result, got %d", len(results))}
	}
	return api.DecodeU32(results[0]), nil
}

// ABIVersion returns the protocol version the guest was built for.
func (i *Instance) ABIVersion(ctx context.Context) (uint32, error) {
	return i.call32(ctx, protocol.ExportABIVersion)
}

// Read copies guest memory.
func (i *Instance) Read(_ context.Context, addr, length uint32) ([]byte, error) {
	return i.memory.ReadBytes(addr, length)
}

// ReserveAllocation reserves a guest result buffer.
func (i *Instance) ReserveAllocation(ctx context.Context, size uint32) (uint32, error) {
	return i.call32(ctx, protocol.ExportReserveAllocation, api.EncodeU32(size))
}

// WriteAllocation fills a reserved guest buffer.
func (i *Instance) WriteAllocation(ctx context.Context, index uint32, data []byte) error {
	ptr, err := i.call32(ctx, protocol.ExportAllocationPointer, api.EncodeU32(index))
	if err != nil {
		return err
	}
	return i.memory.WriteBytes(ptr, data)
}

func (i *Instance) DispatchObject(ctx context.Context, cb, obj uint32) error {
	_, err := i.Call(ctx, protocol.ExportDispatchObject, api.EncodeU32(cb), api.EncodeU32(obj))
	return err
}

func (i *Instance) DispatchEmpty(ctx context.Context, cb uint32) error {
	_, err := i.Call(ctx, protocol.ExportDispatchEmpty, api.EncodeU32(cb))
	return err
}

func (i *Instance) WakeFuture(ctx context.Context, fid uint32, tag protocol.ResultTag, value uint32) error {
	_, err := i.Call(ctx, protocol.ExportWakeFuture, api.EncodeU32(fid), api.EncodeU32(uint32(tag)), api.EncodeU32(value))
	return err
}

// HandleCallback uses the single-channel reentry export.
func (i *Instance) HandleCallback(ctx context.Context, id uint32, payload int32) error {
	_, err := i.Call(ctx, protocol.ExportHandleCallback, api.EncodeU32(id), api.EncodeI32(payload))
	return err
}

// generateUUID generates a unique instance ID.
// Timestamp-based; unique within one process.
func generateUUID() string {
	return fmt.Sprintf("inst-%d", time.Now().UnixNano())
}
