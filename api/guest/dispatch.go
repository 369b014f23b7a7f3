package guest

import (
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// DispatchObject reenters callback cb with host object obj. The object is
// released after the closure returns.
func (b *Bridge) DispatchObject(cb CallbackID, obj ObjectID) {
	fn, trampoline := b.callbacks.acquire(cb)
	b.logger.Debug("Dispatching callback",
		zap.Uint32("callback_id", uint32(cb)),
		zap.Uint32("object_id", uint32(obj)),
	)

	payload := b.Adopt(obj)
	fn(Payload{obj: payload})
	payload.Release()

	if trampoline != nil {
		trampoline.Release()
	}
}

// DispatchEmpty reenters callback cb without a payload.
func (b *Bridge) DispatchEmpty(cb CallbackID) {
	fn, trampoline := b.callbacks.acquire(cb)
	b.logger.Debug("Dispatching callback", zap.Uint32("callback_id", uint32(cb)))

	fn(Payload{})

	if trampoline != nil {
		trampoline.Release()
	}
}

// WakeFuture completes future fid with a packed result. Variable-length
// results must already be written to their allocation slot.
func (b *Bridge) WakeFuture(fid FutureID, tag protocol.ResultTag, value uint32) {
	b.runtime.Wake(fid, Decode(tag, value, b.allocs))
}

// HandleCallback is the single-channel reentry: payload is an object id,
// PayloadEmpty or PayloadFuture (completion with Undefined).
func (b *Bridge) HandleCallback(id uint32, payload int32) {
	switch {
	case payload >= 0:
		b.DispatchObject(CallbackID(id), ObjectID(payload))
	case payload == protocol.PayloadEmpty:
		b.DispatchEmpty(CallbackID(id))
	case payload == protocol.PayloadFuture:
		b.runtime.Wake(FutureID(id), Undefined())
	default:
		violation("dispatch", "invalid payload sentinel %d for callback %d", payload, id)
	}
}

// ReserveAllocation is the host's way to obtain a result buffer.
func (b *Bridge) ReserveAllocation(size uint32) uint32 {
	return b.allocs.Reserve(size)
}
