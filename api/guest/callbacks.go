package guest

import (
	"sync"

	"go.uber.org/zap"
)

// CallbackID identifies a registered guest closure.
type CallbackID uint32

// Handler is a guest closure reentered by the host.
type Handler func(p Payload)

// Payload is what a host reentry hands to a Handler: either nothing or a
// host object. The object is borrowed for the duration of the call and
// released when the handler returns; Keep promotes it to an owned handle.
type Payload struct {
	obj *Object
}

// Empty reports whether the reentry carried no object.
func (p Payload) Empty() bool {
	return p.obj == nil
}

// Object returns the borrowed object, or nil for an empty payload.
func (p Payload) Object() *Object {
	return p.obj
}

// Keep returns an owned reference to the payload object that outlives the
// handler call. It returns nil for an empty payload.
func (p Payload) Keep() *Object {
	if p.obj == nil {
		return nil
	}
	return p.obj.Clone()
}

type entry struct {
	fn   Handler
	once bool
	// trampoline is the host function that reenters this entry.
	trampoline *Object
}

// Registry maps callback ids to guest closures. The lock is never held
// while a closure runs, so closures may register, remove or complete
// other entries. Correct ordering relies on at most one dispatch being in
// flight at a time, which the host event loop guarantees.
type Registry struct {
	mu      sync.Mutex
	entries map[CallbackID]*entry
	owners  map[ObjectID]CallbackID
	next    CallbackID
	logger  *zap.Logger
}

// NewRegistry creates an empty callback registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[CallbackID]*entry),
		owners:  make(map[ObjectID]CallbackID),
		next:    1,
		logger:  logger.With(zap.String("component", "callback-registry")),
	}
}

// Register stores a long-lived closure. It must be paired with Remove.
func (r *Registry) Register(fn Handler) CallbackID {
	return r.insert(fn, false)
}

// RegisterOnce stores a closure that removes itself when it fires.
func (r *Registry) RegisterOnce(fn Handler) CallbackID {
	return r.insert(fn, true)
}

func (r *Registry) insert(fn Handler, once bool) CallbackID {
	r.mu.Lock()
	id := r.next
	r.next++
	r.entries[id] = &entry{fn: fn, once: once}
	r.mu.Unlock()

	r.logger.Debug("Callback registered",
		zap.Uint32("callback_id", uint32(id)),
		zap.Bool("once", once),
	)
	return id
}

// bind records the host trampoline owned by an entry.
func (r *Registry) bind(id CallbackID, trampoline *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		violation("register", "bind to unknown callback %d", id)
	}
	e.trampoline = trampoline
	r.owners[trampoline.ID()] = id
}

// Remove drops a closure and releases its trampoline. It reports whether
// the id was registered.
func (r *Registry) Remove(id CallbackID) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		r.unlink(id, e)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if e.trampoline != nil {
		e.trampoline.Release()
	}
	r.logger.Debug("Callback removed", zap.Uint32("callback_id", uint32(id)))
	return true
}

func (r *Registry) unlink(id CallbackID, e *entry) {
	delete(r.entries, id)
	if e.trampoline != nil {
		delete(r.owners, e.trampoline.ID())
	}
}

// acquire looks up the closure for a dispatch. One-shot entries are
// unlinked before the closure runs; their trampoline is returned so the
// caller releases it after the call.
func (r *Registry) acquire(id CallbackID) (Handler, *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		violation("dispatch", "unknown callback %d", id)
	}
	if !e.once {
		return e.fn, nil
	}
	r.unlink(id, e)
	return e.fn, e.trampoline
}

func (r *Registry) ownerOf(obj ObjectID) (CallbackID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.owners[obj]
	return id, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id CallbackID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered closures.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
