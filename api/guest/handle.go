package guest

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// ObjectID identifies a host-resident object. It is the copy-id handle:
// whoever holds it manages the object's lifetime by calling
// Bridge.ReleaseID exactly once.
type ObjectID uint32

// Value wraps the id as a Ref value.
func (id ObjectID) Value() Value {
	return Ref(id)
}

// objectHandle is the shared state behind reference-counted Objects.
type objectHandle struct {
	id     ObjectID
	refs   atomic.Int32
	bridge *Bridge
}

// Object is a reference-counted handle to a host-resident object. Each
// Object is one strong reference; Clone adds one and Release drops one.
// The host object is released when the last reference is dropped.
type Object struct {
	h        *objectHandle
	released atomic.Bool
}

// Adopt takes ownership of an id returned by the host.
func (b *Bridge) Adopt(id ObjectID) *Object {
	h := &objectHandle{id: id, bridge: b}
	h.refs.Store(1)
	b.liveObjects.Add(1)
	return &Object{h: h}
}

// ID returns the host object id.
func (o *Object) ID() ObjectID {
	return o.h.id
}

// Value returns a Ref to the object. The value borrows this reference.
func (o *Object) Value() Value {
	return Ref(o.h.id)
}

// Equal compares handles by object id.
func (o *Object) Equal(other *Object) bool {
	return other != nil && o.h.id == other.h.id
}

// Clone returns a new strong reference to the same host object.
func (o *Object) Clone() *Object {
	if o.released.Load() {
		violation("object", "clone of released handle %d", o.h.id)
	}
	o.h.refs.Add(1)
	return &Object{h: o.h}
}

// Release drops this reference. Releasing the same Object twice panics.
func (o *Object) Release() {
	if !o.released.CompareAndSwap(false, true) {
		violation("object", "handle %d released twice", o.h.id)
	}
	if o.h.refs.Add(-1) == 0 {
		o.h.bridge.liveObjects.Add(-1)
		o.h.bridge.releaseHost(o.h.id)
	}
}

// ReleaseID releases a copy-id handle.
func (b *Bridge) ReleaseID(id ObjectID) {
	b.releaseHost(id)
}

func (b *Bridge) releaseHost(id ObjectID) {
	if cb, ok := b.callbacks.ownerOf(id); ok {
		violation("object", "object %d released while callback %d is registered against it", id, cb)
	}
	b.logger.Debug("Releasing host object", zap.Uint32("object_id", uint32(id)))
	b.host.Release(uint32(id))
}
