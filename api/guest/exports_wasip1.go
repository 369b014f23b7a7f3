//go:build wasip1

package guest

// This file binds the default bridge to the wasm boundary. Guests are
// built as reactors:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared
//
// uint32 is used for pointers and lengths because wasm32 linear memory
// addresses are 32-bit.

import (
	"sync"
	"unsafe"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
)

//go:wasmimport env __invoke
func hostInvoke(codePtr, codeLen, paramsPtr, paramsLen uint32) uint64

//go:wasmimport env __deallocate
func hostDeallocate(id uint32)

type wasmHost struct{}

func (wasmHost) Invoke(code string, params []byte) uint64 {
	return hostInvoke(stringAddr(code), uint32(len(code)), bytesAddr(params), uint32(len(params)))
}

func (wasmHost) Release(id uint32) {
	hostDeallocate(id)
}

func (wasmHost) Addr(s string) uint32 {
	return stringAddr(s)
}

func stringAddr(s string) uint32 {
	if len(s) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(unsafe.StringData(s))))
}

func bytesAddr(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

var (
	defaultOnce   sync.Once
	defaultOpts   []Option
	defaultBridge *Bridge
)

// Configure sets the options of the default bridge. It has no effect once
// Default has been called.
func Configure(opts ...Option) {
	defaultOpts = append(defaultOpts, opts...)
}

// Default returns the process-lifetime bridge bound to the wasm imports.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = New(wasmHost{}, defaultOpts...)
	})
	return defaultBridge
}

//go:wasmexport reserve_allocation
func reserveAllocation(size uint32) uint32 {
	return Default().ReserveAllocation(size)
}

//go:wasmexport allocation_pointer
func allocationPointer(index uint32) uint32 {
	return bytesAddr(Default().allocs.Bytes(index))
}

//go:wasmexport dispatch_object
func dispatchObject(cb, obj uint32) {
	Default().DispatchObject(CallbackID(cb), ObjectID(obj))
}

//go:wasmexport dispatch_empty
func dispatchEmpty(cb uint32) {
	Default().DispatchEmpty(CallbackID(cb))
}

//go:wasmexport wake_future
func wakeFuture(fid, tag, value uint32) {
	Default().WakeFuture(FutureID(fid), protocol.ResultTag(tag), value)
}

//go:wasmexport handle_callback
func handleCallback(id uint32, payload int32) {
	Default().HandleCallback(id, payload)
}

//go:wasmexport abi_version
func abiVersion() uint32 {
	return protocol.Version
}
