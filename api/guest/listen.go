package guest

import (
	"time"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// Callback is a registered closure together with the host function that
// reenters it. Pass Function (or Value) to host APIs that take a listener.
type Callback struct {
	b          *Bridge
	id         CallbackID
	trampoline *Object
	timer      float64
}

// Callback registers fn and creates its host trampoline. The entry stays
// registered until Remove.
func (b *Bridge) Callback(fn Handler) *Callback {
	return b.newCallback(b.callbacks.Register(fn))
}

// Once registers fn as a one-shot closure. The entry and its trampoline are
// released after the first dispatch.
func (b *Bridge) Once(fn Handler) *Callback {
	return b.newCallback(b.callbacks.RegisterOnce(fn))
}

func (b *Bridge) newCallback(id CallbackID) *Callback {
	trampoline := b.mustObject("return "+protocol.FnCallback+"({})", Number(float64(id)))
	b.callbacks.bind(id, trampoline)
	return &Callback{b: b, id: id, trampoline: trampoline}
}

// ID returns the registry id.
func (c *Callback) ID() CallbackID {
	return c.id
}

// Function returns an owned reference to the trampoline.
func (c *Callback) Function() *Object {
	return c.trampoline.Clone()
}

// Value borrows the trampoline as a parameter value.
func (c *Callback) Value() Value {
	return c.trampoline.Value()
}

// Remove unregisters the closure and releases its trampoline. It reports
// false if the entry was already gone, e.g. a one-shot that has fired.
func (c *Callback) Remove() bool {
	return c.b.callbacks.Remove(c.id)
}

// Promise creates a future and starts the host operation that completes
// it. params receives the completion function and returns the template
// parameters; the host calls that function with the operation's result.
func (b *Bridge) Promise(template string, params func(fn Value) []Value) *Future {
	f := b.runtime.NewFuture()
	trampoline := b.mustObject("return "+protocol.FnFutureCallback+"({})", Number(float64(f.id)))
	b.runtime.attach(f.id, trampoline)

	var args []Value
	if params != nil {
		args = params(trampoline.Value())
	}
	b.Exec(template, args...)
	return f
}

// Sleep returns a future completed by a host timer after d.
func (b *Bridge) Sleep(d time.Duration) *Future {
	return b.Promise("setTimeout({}, {})", func(fn Value) []Value {
		return []Value{fn, Number(float64(d.Milliseconds()))}
	})
}

// SetTimeout runs fn once after d.
func (b *Bridge) SetTimeout(d time.Duration, fn func()) *Callback {
	c := b.Once(func(Payload) { fn() })
	timer, err := b.InvokeNumber("return setTimeout({}, {})", c.Value(), Number(float64(d.Milliseconds())))
	if err != nil {
		violation("timer", "setTimeout: %v", err)
	}
	c.timer = timer
	return c
}

// ClearTimeout cancels a timer created by SetTimeout. Clearing a timer that
// already fired is a no-op.
func (b *Bridge) ClearTimeout(c *Callback) {
	if !b.callbacks.Has(c.id) {
		return
	}
	b.Exec("clearTimeout({})", Number(c.timer))
	c.Remove()
}

// deferTimer is the default Scheduler: a zero-delay host timer.
func (b *Bridge) deferTimer(fn func()) {
	b.SetTimeout(0, fn)
}

// Console writes msg through the host console at level, one of log,
// debug, info, warn or error.
func (b *Bridge) Console(level, msg string) {
	switch level {
	case "log", "debug", "info", "warn", "error":
	default:
		b.logger.Warn("Unknown console level, using log", zap.String("level", level))
		level = "log"
	}
	b.Exec("console."+level+"({})", Str(msg))
}
