package protocol

// Wire protocol shared by the guest core and the host embedder.
// Both sides must agree on a single version; the tag sets are closed.

// Version is the ABI version exported by guests as abi_version.
const Version uint32 = 1

// ParamTag is the one-byte kind tag that prefixes every encoded parameter.
type ParamTag uint8

const (
	ParamUndefined ParamTag = 0
	ParamNull      ParamTag = 1
	ParamBuffer    ParamTag = 2 // u32 LE length + raw bytes
	ParamBigInt    ParamTag = 3 // i64 LE
	ParamStr       ParamTag = 4 // u32 LE guest address + u32 LE length
	ParamTrue      ParamTag = 5
	ParamFalse     ParamTag = 6
	ParamRef       ParamTag = 7 // u32 LE object id
	ParamNumber    ParamTag = 8 // f64 LE
)

// Payload sizes (excluding the tag byte).
const (
	SizeNumber = 8
	SizeBigInt = 8
	SizeRef    = 4
	SizeStr    = 8
	SizeLength = 4
)

// ResultTag is the high half of the packed word returned by __invoke and
// passed to wake_future.
type ResultTag uint32

const (
	ResultUndefined ResultTag = 0
	ResultNumber    ResultTag = 1 // u32 integer carried inline
	ResultRef       ResultTag = 2 // object id inline
	ResultStr       ResultTag = 3 // allocation index, UTF-8 bytes
	ResultBuffer    ResultTag = 4 // allocation index, raw bytes
	ResultBool      ResultTag = 5 // 0 or 1 inline
	ResultNull      ResultTag = 6
	ResultFloat     ResultTag = 7 // allocation index, 8-byte f64 LE
	ResultBigInt    ResultTag = 8 // allocation index, 8-byte i64 LE
)

// Pack combines a result tag and a 32-bit value into one word.
func Pack(tag ResultTag, value uint32) uint64 {
	return uint64(tag)<<32 | uint64(value)
}

// Unpack splits a packed word into its tag and value.
func Unpack(packed uint64) (ResultTag, uint32) {
	return ResultTag(packed >> 32), uint32(packed & 0xFFFFFFFF)
}

// Sentinels of the single-channel handle_callback export.
// Non-negative payloads are object ids.
const (
	PayloadEmpty  int32 = -1
	PayloadFuture int32 = -2
)

// Host imports, all in module ImportModule.
const (
	ImportModule     = "env"
	ImportInvoke     = "__invoke"
	ImportDeallocate = "__deallocate"
)

// Guest exports.
const (
	// ExportReserveAllocation reserves a zero-filled guest buffer.
	// Signature: reserve_allocation(size: i32) -> i32 (allocation index)
	ExportReserveAllocation = "reserve_allocation"

	// ExportAllocationPointer returns the linear memory address of a slot.
	// Signature: allocation_pointer(index: i32) -> i32
	ExportAllocationPointer = "allocation_pointer"

	// ExportDispatchObject reenters a callback with a host object.
	// Signature: dispatch_object(callback: i32, object: i32)
	ExportDispatchObject = "dispatch_object"

	// ExportDispatchEmpty reenters a callback without payload.
	// Signature: dispatch_empty(callback: i32)
	ExportDispatchEmpty = "dispatch_empty"

	// ExportWakeFuture completes a future with a packed result.
	// Signature: wake_future(future: i32, tag: i32, value: i32)
	ExportWakeFuture = "wake_future"

	// ExportHandleCallback is the single-channel reentry using sentinels.
	// Signature: handle_callback(callback: i32, payload: i32)
	ExportHandleCallback = "handle_callback"

	// ExportABIVersion reports the protocol version the guest was built for.
	// Signature: abi_version() -> i32
	ExportABIVersion = "abi_version"

	// ExportInitialize is the WASI reactor initializer.
	ExportInitialize = "_initialize"

	// DefaultEntry is the app entry export used when a manifest names none.
	DefaultEntry = "start"
)

// Host prelude functions referenced by guest templates.
const (
	// FnCallback returns a trampoline that reenters dispatch_object or
	// dispatch_empty for the given callback id.
	FnCallback = "__callback"

	// FnFutureCallback returns a trampoline that completes a future through
	// wake_future with the value it is called with.
	FnFutureCallback = "__futureCallback"
)

// Placeholder is the positional marker replaced in invoke templates.
const Placeholder = "{}"
