package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// HostFunctionsImpl implements the env imports guests use to reach the
// script host. Each call is routed to the Instance that made it.
type HostFunctionsImpl struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewHostFunctions creates the env host function implementation.
func NewHostFunctions(runtime *Runtime, logger *zap.Logger) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-host")),
	}
}

// Export registers the env functions on builder.
func (h *HostFunctionsImpl) Export(builder wazero.HostModuleBuilder) wazero.HostModuleBuilder {
	// Guests call __invoke to run a synthesized routine in the script host.
	builder.NewFunctionBuilder().
		WithFunc(h.invoke).
		WithParameterNames("code_ptr", "code_len", "params_ptr", "params_len").
		WithResultNames("packed").
		Export(protocol.ImportInvoke)

	// Guests call __deallocate when they drop their last reference to a
	// host object.
	builder.NewFunctionBuilder().
		WithFunc(h.deallocate).
		WithParameterNames("id").
		Export(protocol.ImportDeallocate)

	return builder
}

// caller resolves the instance a host function was called from. A failure
// here is a broken host invariant, so it panics like the other host
// function errors.
func (h *HostFunctionsImpl) caller(fn string, mod api.Module) *Instance {
	inst, ok := h.runtime.GetInstance(mod.Name())
	if !ok {
		panic(&HostFunctionError{FunctionName: fn, Err: fmt.Errorf("unknown caller module '%s'", mod.Name())})
	}
	return inst
}

// invoke is called by guests to run a routine.
// Signature: __invoke(code_ptr, code_len, params_ptr, params_len) -> packed
//
// The routine failing is a broken guest contract: the error is raised as
// a panic, which wazero turns into an error of the guest export call.
func (h *HostFunctionsImpl) invoke(ctx context.Context, mod api.Module, codePtr, codeLen, paramsPtr, paramsLen uint32) uint64 {
	inst := h.caller(protocol.ImportInvoke, mod)

	code, err := inst.memory.ReadString(codePtr, codeLen)
	if err != nil {
		panic(&HostFunctionError{FunctionName: protocol.ImportInvoke, Err: err})
	}
	params, err := inst.memory.ReadBytes(paramsPtr, paramsLen)
	if err != nil {
		panic(&HostFunctionError{FunctionName: protocol.ImportInvoke, Err: err})
	}

	packed, err := inst.host.Invoke(ctx, inst, code, params)
	if err != nil {
		h.logger.Error("Host routine failed",
			zap.String("instance_id", inst.ID),
			zap.String("code", code),
			zap.Error(err),
		)
		panic(&HostFunctionError{FunctionName: protocol.ImportInvoke, Err: err})
	}
	return packed
}

// deallocate is called by guests to release a host object.
// Signature: __deallocate(id)
func (h *HostFunctionsImpl) deallocate(ctx context.Context, mod api.Module, id uint32) {
	inst := h.caller(protocol.ImportDeallocate, mod)
	if err := inst.host.Release(id); err != nil {
		panic(&HostFunctionError{FunctionName: protocol.ImportDeallocate, Err: err})
	}
}
