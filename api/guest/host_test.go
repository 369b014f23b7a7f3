package guest

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

// fakeHost is a scripted host. It understands the trampoline and timer
// routines the bridge emits and records everything else.
type fakeHost struct {
	t      *testing.T
	bridge *Bridge

	arena []string
	calls []fakeCall

	nextObject uint32
	live       map[uint32]bool
	released   []uint32

	trampolines map[uint32]trampoline
	timers      []uint32
	nextTimer   uint32

	// reply overrides the result of routines the fake does not model.
	reply func(code string, params []any) uint64
}

type fakeCall struct {
	code   string
	params []any
}

type trampoline struct {
	future bool
	id     uint32
}

func newFakeHost(t *testing.T, opts ...Option) (*fakeHost, *Bridge) {
	t.Helper()
	h := &fakeHost{
		t:           t,
		nextObject:  100,
		live:        make(map[uint32]bool),
		trampolines: make(map[uint32]trampoline),
		nextTimer:   1,
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	h.bridge = New(h, opts...)
	return h, h.bridge
}

func (h *fakeHost) Addr(s string) uint32 {
	h.arena = append(h.arena, s)
	return uint32(len(h.arena))
}

func (h *fakeHost) Release(id uint32) {
	if !h.live[id] {
		h.t.Errorf("release of unknown host object %d", id)
	}
	delete(h.live, id)
	delete(h.trampolines, id)
	h.released = append(h.released, id)
}

func (h *fakeHost) Invoke(code string, encoded []byte) uint64 {
	params := h.decode(encoded)
	h.calls = append(h.calls, fakeCall{code: code, params: params})

	switch {
	case strings.Contains(code, protocol.FnFutureCallback+"("):
		return h.newTrampoline(true, params)
	case strings.Contains(code, protocol.FnCallback+"("):
		return h.newTrampoline(false, params)
	case strings.Contains(code, "clearTimeout("):
		h.clearTimer(params)
		return protocol.Pack(protocol.ResultUndefined, 0)
	case strings.Contains(code, "setTimeout("):
		return h.setTimer(params)
	}
	if h.reply != nil {
		return h.reply(code, params)
	}
	return protocol.Pack(protocol.ResultUndefined, 0)
}

func (h *fakeHost) newObject() uint32 {
	id := h.nextObject
	h.nextObject++
	h.live[id] = true
	return id
}

func (h *fakeHost) newTrampoline(future bool, params []any) uint64 {
	id := h.newObject()
	h.trampolines[id] = trampoline{future: future, id: uint32(params[0].(float64))}
	return protocol.Pack(protocol.ResultRef, id)
}

func (h *fakeHost) setTimer(params []any) uint64 {
	fn := params[0].(ObjectID)
	if _, ok := h.trampolines[uint32(fn)]; !ok {
		h.t.Fatalf("setTimeout with non-function object %d", fn)
	}
	h.timers = append(h.timers, uint32(fn))
	timer := h.nextTimer
	h.nextTimer++
	return protocol.Pack(protocol.ResultNumber, timer)
}

func (h *fakeHost) clearTimer(params []any) {
	timer := int(params[0].(float64))
	if timer >= 1 && timer <= len(h.timers) {
		h.timers[timer-1] = 0
	}
}

// runTimers fires queued timers in order, including timers queued while
// running, and returns how many fired.
func (h *fakeHost) runTimers() int {
	fired := 0
	for i := 0; i < len(h.timers); i++ {
		fn := h.timers[i]
		if fn == 0 {
			continue
		}
		h.timers[i] = 0
		tr, ok := h.trampolines[fn]
		if !ok {
			// released trampolines stay callable on a real host but are
			// unreachable from the guest
			continue
		}
		fired++
		if tr.future {
			h.bridge.WakeFuture(FutureID(tr.id), protocol.ResultUndefined, 0)
		} else {
			h.bridge.DispatchEmpty(CallbackID(tr.id))
		}
	}
	return fired
}

// writeSlot stores b in a fresh guest allocation the way the host does.
func (h *fakeHost) writeSlot(b []byte) uint32 {
	index := h.bridge.ReserveAllocation(uint32(len(b)))
	copy(h.bridge.Allocations().Bytes(index), b)
	return index
}

func (h *fakeHost) packString(s string) uint64 {
	return protocol.Pack(protocol.ResultStr, h.writeSlot([]byte(s)))
}

func (h *fakeHost) packFloat(f float64) uint64 {
	return protocol.Pack(protocol.ResultFloat, h.writeSlot(binary.LittleEndian.AppendUint64(nil, math.Float64bits(f))))
}

func (h *fakeHost) lastCall() fakeCall {
	h.t.Helper()
	if len(h.calls) == 0 {
		h.t.Fatal("no host calls recorded")
	}
	return h.calls[len(h.calls)-1]
}

// decode turns encoded params into Go values: nil for undefined, the
// string "null", bool, float64, int64, string, []byte or ObjectID.
func (h *fakeHost) decode(b []byte) []any {
	var out []any
	for len(b) > 0 {
		tag := protocol.ParamTag(b[0])
		b = b[1:]
		switch tag {
		case protocol.ParamUndefined:
			out = append(out, nil)
		case protocol.ParamNull:
			out = append(out, "null")
		case protocol.ParamTrue:
			out = append(out, true)
		case protocol.ParamFalse:
			out = append(out, false)
		case protocol.ParamNumber:
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(b)))
			b = b[protocol.SizeNumber:]
		case protocol.ParamBigInt:
			out = append(out, int64(binary.LittleEndian.Uint64(b)))
			b = b[protocol.SizeBigInt:]
		case protocol.ParamRef:
			out = append(out, ObjectID(binary.LittleEndian.Uint32(b)))
			b = b[protocol.SizeRef:]
		case protocol.ParamStr:
			addr := binary.LittleEndian.Uint32(b)
			n := binary.LittleEndian.Uint32(b[4:])
			s := h.arena[addr-1]
			if uint32(len(s)) != n {
				h.t.Fatalf("string length %d does not match arena entry %q", n, s)
			}
			out = append(out, s)
			b = b[protocol.SizeStr:]
		case protocol.ParamBuffer:
			n := binary.LittleEndian.Uint32(b)
			b = b[protocol.SizeLength:]
			out = append(out, append([]byte{}, b[:n]...))
			b = b[n:]
		default:
			h.t.Fatalf("unknown param tag %d", tag)
		}
	}
	return out
}

// manualScheduler queues deferred polls until run.
type manualScheduler struct {
	queue []func()
}

func (s *manualScheduler) Defer(fn func()) {
	s.queue = append(s.queue, fn)
}

func (s *manualScheduler) run() int {
	n := 0
	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue = s.queue[1:]
		fn()
		n++
	}
	return n
}
