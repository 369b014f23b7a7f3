package guest

// Do runs fn once and completes.
func Do(fn func()) Task {
	return TaskFunc(func(*Waker) Status {
		fn()
		return Ready
	})
}

// AwaitFuture waits for f and hands its result to then.
func AwaitFuture(f *Future, then func(Value)) Task {
	return TaskFunc(func(w *Waker) Status {
		v, ok := f.Poll(w)
		if !ok {
			return Pending
		}
		if then != nil {
			then(v)
		}
		return Ready
	})
}

// Then starts a host operation on first poll, waits for its future and
// continues with the task built from the result. next may return nil.
func Then(start func() *Future, next func(Value) Task) Task {
	return &thenTask{start: start, next: next}
}

// Await is Then with a continuation that cannot suspend.
func Await(start func() *Future, then func(Value)) Task {
	return Then(start, func(v Value) Task {
		if then != nil {
			then(v)
		}
		return nil
	})
}

type thenTask struct {
	start func() *Future
	next  func(Value) Task
	fut   *Future
	cont  Task
}

func (t *thenTask) Poll(w *Waker) Status {
	if t.cont != nil {
		return t.cont.Poll(w)
	}
	if t.fut == nil {
		t.fut = t.start()
	}
	v, ok := t.fut.Poll(w)
	if !ok {
		return Pending
	}
	t.fut = nil
	t.cont = t.next(v)
	if t.cont == nil {
		return Ready
	}
	return t.cont.Poll(w)
}

// Seq runs tasks one after another.
func Seq(tasks ...Task) Task {
	return &seqTask{tasks: tasks}
}

type seqTask struct {
	tasks []Task
	i     int
}

func (s *seqTask) Poll(w *Waker) Status {
	for s.i < len(s.tasks) {
		if s.tasks[s.i].Poll(w) == Pending {
			return Pending
		}
		s.tasks[s.i] = nil
		s.i++
	}
	return Ready
}

// Race waits for whichever of two futures completes first and passes its
// index (0 or 1) and result to then. The loser is discarded: it still
// completes on the host, and a host object it resolves to is released.
// Timeouts are built this way by racing an operation against Sleep.
func Race(first, second *Future, then func(index int, v Value)) Task {
	return TaskFunc(func(w *Waker) Status {
		if v, ok := first.Poll(w); ok {
			second.Discard()
			then(0, v)
			return Ready
		}
		if v, ok := second.Poll(w); ok {
			first.Discard()
			then(1, v)
			return Ready
		}
		return Pending
	})
}
