package guest

import (
	"sync"
	"sync/atomic"
)

// Status is the outcome of polling a Task.
type Status bool

const (
	Pending Status = false
	Ready   Status = true
)

// Task is a resumable computation. Poll advances it until it either
// finishes (Ready) or must wait on a Future (Pending); in the latter case
// the future has stored the waker and will reschedule the task.
type Task interface {
	Poll(w *Waker) Status
}

// TaskFunc adapts a poll function to a Task.
type TaskFunc func(w *Waker) Status

func (f TaskFunc) Poll(w *Waker) Status { return f(w) }

// task is the heap-resident box the runtime polls. refs counts the wakers
// alive for it plus the driver reference held during BlockOn.
type task struct {
	rt   *Runtime
	body Task
	refs atomic.Int32

	mu        sync.Mutex
	done      bool
	polling   bool
	repoll    bool
	scheduled bool
}

// Waker reschedules a suspended task. Every Waker is one strong reference
// to its task and must be consumed by exactly one Wake or Drop.
type Waker struct {
	t       *task
	dropped atomic.Bool
}

func (t *task) waker() *Waker {
	t.refs.Add(1)
	return &Waker{t: t}
}

// Clone returns another reference to the same task.
func (w *Waker) Clone() *Waker {
	if w.dropped.Load() {
		violation("waker", "clone of dropped waker")
	}
	return w.t.waker()
}

// WakeByRef schedules a poll of the task without consuming w.
func (w *Waker) WakeByRef() {
	if w.dropped.Load() {
		violation("waker", "wake of dropped waker")
	}
	w.t.schedule()
}

// Wake schedules a poll of the task and consumes w.
func (w *Waker) Wake() {
	w.WakeByRef()
	w.Drop()
}

// Drop releases w's reference to the task.
func (w *Waker) Drop() {
	if !w.dropped.CompareAndSwap(false, true) {
		violation("waker", "waker dropped twice")
	}
	w.t.release()
}

// BlockOn drives task until its first pending point and returns whether it
// already completed. It never blocks: remaining progress happens when
// host reentry wakes the futures it waits on. Top-level tasks cannot be
// cancelled.
func (rt *Runtime) BlockOn(body Task) bool {
	t := &task{rt: rt, body: body}
	t.refs.Store(1)

	rt.mu.Lock()
	rt.tasks++
	rt.mu.Unlock()

	t.poll()

	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	t.release()
	return done
}

func (t *task) schedule() {
	t.mu.Lock()
	if t.done || t.scheduled {
		t.mu.Unlock()
		return
	}
	t.scheduled = true
	t.mu.Unlock()

	keep := t.waker()
	t.rt.sched.Defer(func() {
		t.poll()
		keep.Drop()
	})
}

func (t *task) poll() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if t.polling {
		// A scheduler that runs deferred work inline woke us mid-poll.
		t.repoll = true
		t.mu.Unlock()
		return
	}
	t.polling = true
	t.mu.Unlock()

	for {
		t.mu.Lock()
		t.scheduled = false
		t.repoll = false
		t.mu.Unlock()

		w := t.waker()
		status := t.body.Poll(w)
		w.Drop()

		t.mu.Lock()
		if status == Ready {
			t.done = true
			t.polling = false
			t.body = nil
			t.mu.Unlock()
			t.rt.finished()
			return
		}
		if !t.repoll {
			t.polling = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
	}
}

func (t *task) release() {
	if t.refs.Add(-1) != 0 {
		return
	}
	t.mu.Lock()
	done := t.done
	t.body = nil
	t.mu.Unlock()

	if !done {
		t.rt.abandon()
	}
}

func (rt *Runtime) finished() {
	rt.mu.Lock()
	rt.tasks--
	rt.mu.Unlock()
	rt.logger.Debug("Task completed")
}

func (rt *Runtime) abandon() {
	rt.mu.Lock()
	rt.tasks--
	rt.abandoned++
	rt.mu.Unlock()
	rt.logger.Warn("Task dropped before completion: nothing can wake it")
}
