package guest

import (
	"sync"

	"go.uber.org/zap"
)

// FutureID identifies a pending host operation.
type FutureID uint32

// Scheduler defers a poll until after control has returned to the host.
type Scheduler interface {
	Defer(fn func())
}

// SchedulerFunc adapts a function to a Scheduler.
type SchedulerFunc func(fn func())

func (f SchedulerFunc) Defer(fn func()) { f(fn) }

type futureState struct {
	done      bool
	consumed  bool
	discarded bool
	result   Value
	waker    *Waker
	// trampoline is the host function completing this future, if any.
	trampoline *Object
}

// Future is the single future type bridging a host operation to guest
// tasks. It completes exactly once through Runtime.Wake.
type Future struct {
	id FutureID
	rt *Runtime
	st *futureState
}

// Runtime is the cooperative single-threaded executor.
type Runtime struct {
	mu        sync.Mutex
	futures   map[FutureID]*futureState
	next      FutureID
	sched     Scheduler
	tasks     int
	abandoned int
	logger    *zap.Logger

	// release frees a result nobody will consume.
	release func(Value)
}

// NewRuntime creates a runtime that reschedules woken tasks through sched.
func NewRuntime(sched Scheduler, logger *zap.Logger) *Runtime {
	return &Runtime{
		futures: make(map[FutureID]*futureState),
		next:    1,
		sched:   sched,
		logger:  logger.With(zap.String("component", "future-runtime")),
		release: func(Value) {},
	}
}

// NewFuture allocates a pending future. It must be created before the
// host operation that completes it is started.
func (rt *Runtime) NewFuture() *Future {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id := rt.next
	rt.next++
	st := &futureState{}
	rt.futures[id] = st
	return &Future{id: id, rt: rt, st: st}
}

// ID returns the id the host uses to complete the future.
func (f *Future) ID() FutureID {
	return f.id
}

// Poll returns the result once the future has completed. Until then it
// stores a clone of w and reports false. After the ready poll the future is
// spent; polling it again panics.
func (f *Future) Poll(w *Waker) (Value, bool) {
	f.rt.mu.Lock()
	st := f.st
	if st.consumed {
		f.rt.mu.Unlock()
		violation("poll", "future %d polled after completion", f.id)
	}
	if st.done {
		st.consumed = true
		result := st.result
		st.result = Value{}
		f.rt.mu.Unlock()
		return result, true
	}
	previous := st.waker
	st.waker = w.Clone()
	f.rt.mu.Unlock()

	if previous != nil {
		previous.Drop()
	}
	return Undefined(), false
}

// Discard gives up on the future. A result that is already available, or
// arrives later, is released if it holds a host object. Polling a
// discarded future panics; discarding a spent future does nothing.
func (f *Future) Discard() {
	f.rt.mu.Lock()
	st := f.st
	if st.consumed {
		f.rt.mu.Unlock()
		return
	}
	st.consumed = true
	st.discarded = true
	waker := st.waker
	st.waker = nil
	ready := st.done
	result := st.result
	st.result = Value{}
	f.rt.mu.Unlock()

	if waker != nil {
		waker.Drop()
	}
	if ready {
		f.rt.release(result)
	}
}

// Wake completes future id with result and wakes the task waiting on it.
// Completing an unknown or already completed future panics.
func (rt *Runtime) Wake(id FutureID, result Value) {
	rt.mu.Lock()
	st, ok := rt.futures[id]
	if !ok {
		rt.mu.Unlock()
		violation("wake", "unknown or completed future %d", id)
	}
	delete(rt.futures, id)
	st.done = true
	discarded := st.discarded
	if !discarded {
		st.result = result
	}
	waker := st.waker
	st.waker = nil
	trampoline := st.trampoline
	st.trampoline = nil
	rt.mu.Unlock()

	rt.logger.Debug("Future completed",
		zap.Uint32("future_id", uint32(id)),
		zap.Stringer("result", result),
		zap.Bool("has_waker", waker != nil),
		zap.Bool("discarded", discarded),
	)

	if trampoline != nil {
		trampoline.Release()
	}
	if discarded {
		rt.release(result)
	}
	if waker != nil {
		waker.Wake()
	}
}

func (rt *Runtime) attach(id FutureID, trampoline *Object) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	st, ok := rt.futures[id]
	if !ok {
		violation("promise", "attach to unknown future %d", id)
	}
	st.trampoline = trampoline
}

// Pending returns the number of futures not yet completed.
func (rt *Runtime) Pending() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.futures)
}

// Tasks returns the number of tasks that are neither finished nor abandoned.
func (rt *Runtime) Tasks() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tasks
}

// Abandoned returns the number of tasks dropped before completion.
func (rt *Runtime) Abandoned() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.abandoned
}
