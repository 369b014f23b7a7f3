package guest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInvoke_SendsSynthesizedRoutine(t *testing.T) {
	h, b := newFakeHost(t)
	h.live[1] = true

	b.Exec("{}.textContent = {}", Ref(1), Str("hi"))

	call := h.lastCall()
	assert.Equal(t, "function(p0,p1){ p0.textContent = p1 }", call.code)
	assert.Equal(t, []any{ObjectID(1), "hi"}, call.params)
}

func TestInvokeObject(t *testing.T) {
	h, b := newFakeHost(t)
	h.reply = func(string, []any) uint64 {
		return protocol.Pack(protocol.ResultRef, h.newObject())
	}

	obj, err := b.InvokeObject("return document.createElement({})", Str("div"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Stats().Objects)

	obj.Release()
	assert.Len(t, h.released, 1)
	assert.Equal(t, int64(0), b.Stats().Objects)
}

func TestInvoke_TypeMismatchReleasesObject(t *testing.T) {
	h, b := newFakeHost(t)
	h.reply = func(string, []any) uint64 {
		return protocol.Pack(protocol.ResultRef, h.newObject())
	}

	_, err := b.InvokeString("return document.body")
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindRef, te.Got)
	assert.Len(t, h.released, 1)
	assert.Empty(t, h.live)

	b.Exec("return document.body")
	assert.Empty(t, h.live)
}

func TestInvokeBigIntAndBool(t *testing.T) {
	h, b := newFakeHost(t)

	h.reply = func(string, []any) uint64 {
		return protocol.Pack(protocol.ResultBool, 1)
	}
	ok, err := b.InvokeBool("return true")
	require.NoError(t, err)
	assert.True(t, ok)

	h.reply = func(_ string, params []any) uint64 {
		n := params[0].(int64)
		slot := h.writeSlot([]byte{byte(n), 0, 0, 0, 0, 0, 0, 0})
		return protocol.Pack(protocol.ResultBigInt, slot)
	}
	n, err := b.InvokeBigInt("return {}", BigInt(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

// Scenario: two timer-driven wakes run their effects in order.
func TestSleep_TikTok(t *testing.T) {
	h, b := newFakeHost(t)

	var effects []string
	step := func(word string) Task {
		return Await(func() *Future { return b.Sleep(0) }, func(Value) {
			effects = append(effects, word)
		})
	}

	done := b.BlockOn(Seq(step("tik"), step("tok")))
	require.False(t, done)
	assert.Empty(t, effects)

	h.runTimers()

	assert.Equal(t, []string{"tik", "tok"}, effects)
	assert.Equal(t, Stats{}, b.Stats())
	assert.Empty(t, h.live, "trampolines are all released")
}

func TestSleep_PassesDelay(t *testing.T) {
	h, b := newFakeHost(t)

	b.Sleep(1500 * time.Millisecond)

	call := h.lastCall()
	assert.Equal(t, "function(p0,p1){ setTimeout(p0, p1) }", call.code)
	require.Len(t, call.params, 2)
	assert.Equal(t, 1500.0, call.params[1])
}

func TestSetTimeout(t *testing.T) {
	h, b := newFakeHost(t)

	fired := 0
	b.SetTimeout(10*time.Millisecond, func() { fired++ })
	cleared := b.SetTimeout(20*time.Millisecond, func() { fired += 100 })
	b.ClearTimeout(cleared)

	assert.Equal(t, 1, h.runTimers())
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, b.Callbacks().Len())
	assert.Empty(t, h.live)

	// Clearing a fired timer is a no-op.
	b.ClearTimeout(cleared)
}

func TestPromise(t *testing.T) {
	h, b := newFakeHost(t)
	var fn ObjectID
	h.reply = func(code string, params []any) uint64 {
		if strings.Contains(code, "fetch") {
			fn = params[1].(ObjectID)
		}
		return protocol.Pack(protocol.ResultUndefined, 0)
	}

	var body string
	f := b.Promise("fetch({}).then({})", func(resolve Value) []Value {
		return []Value{Str("/data"), resolve}
	})
	b.BlockOn(AwaitFuture(f, func(v Value) { body, _ = v.AsString() }))

	tr, ok := h.trampolines[uint32(fn)]
	require.True(t, ok)
	require.True(t, tr.future)
	assert.Equal(t, uint32(f.ID()), tr.id)

	// The host resolves with a string written to a slot.
	b.WakeFuture(f.ID(), protocol.ResultStr, h.writeSlot([]byte("payload")))
	h.runTimers()

	assert.Equal(t, "payload", body)
	assert.Equal(t, Stats{}, b.Stats())
}

func TestWithScheduler(t *testing.T) {
	sched := &manualScheduler{}
	_, b := newFakeHost(t, WithScheduler(sched))

	f := b.Runtime().NewFuture()
	b.BlockOn(AwaitFuture(f, nil))
	b.Runtime().Wake(f.ID(), Undefined())

	assert.Len(t, sched.queue, 1)
	sched.run()
	assert.Equal(t, 0, b.Runtime().Tasks())
}

func TestConsole(t *testing.T) {
	h, b := newFakeHost(t)

	b.Console("warn", "careful")
	assert.Equal(t, "function(p0){ console.warn(p0) }", h.lastCall().code)

	b.Console("shout", "x")
	assert.Equal(t, "function(p0){ console.log(p0) }", h.lastCall().code)
}

func TestConsoleCore(t *testing.T) {
	h, b := newFakeHost(t)

	logger := zap.New(NewConsoleCore(b, zapcore.InfoLevel)).With(zap.String("app", "demo"))
	logger.Debug("hidden")
	logger.Info("mounted", zap.Int("nodes", 3))
	logger.Error("failed")

	require.Len(t, h.calls, 2)
	assert.Contains(t, h.calls[0].code, "console.info(")
	msg := h.calls[0].params[0].(string)
	assert.Contains(t, msg, "mounted")
	assert.Contains(t, msg, `"app": "demo"`)
	assert.Contains(t, msg, `"nodes": 3`)
	assert.Contains(t, h.calls[1].code, "console.error(")
}
