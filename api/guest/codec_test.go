package guest

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
)

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name     string
		template string
		n        int
		want     string
	}{
		{"method call", "{}.f({},{})", 3, "function(p0,p1,p2){ p0.f(p1,p2) }"},
		{"no params", "return document.body", 0, "function(){ return document.body }"},
		{"assignment", "{}.textContent = {}", 2, "function(p0,p1){ p0.textContent = p1 }"},
		{"spaced braces are not markers", "if ({}) { }", 1, "function(p0){ if (p0) { } }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Synthesize(tt.template, tt.n)
			assert.Equal(t, stripSpace(tt.want), stripSpace(got))
		})
	}
}

func TestSynthesize_PlaceholderMismatch(t *testing.T) {
	assert.Panics(t, func() { Synthesize("{}.f({})", 1) })
	assert.Panics(t, func() { Synthesize("{}", 2) })
}

func TestEncode_Layout(t *testing.T) {
	arena := map[string]uint32{"hi": 0x1000}
	addr := func(s string) uint32 { return arena[s] }

	got := Encode([]Value{
		Undefined(),
		Null(),
		Bool(true),
		Bool(false),
		Ref(7),
		Str("hi"),
		Buffer([]byte{0xAA, 0xBB}),
		Number(1),
		BigInt(-1),
	}, addr)

	want := []byte{
		byte(protocol.ParamUndefined),
		byte(protocol.ParamNull),
		byte(protocol.ParamTrue),
		byte(protocol.ParamFalse),
		byte(protocol.ParamRef), 7, 0, 0, 0,
		byte(protocol.ParamStr), 0x00, 0x10, 0, 0, 2, 0, 0, 0,
		byte(protocol.ParamBuffer), 2, 0, 0, 0, 0xAA, 0xBB,
		byte(protocol.ParamNumber), 0, 0, 0, 0, 0, 0, 0xF0, 0x3F,
		byte(protocol.ParamBigInt), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), encodedSize([]Value{
		Undefined(), Null(), Bool(true), Bool(false), Ref(7), Str("hi"),
		Buffer([]byte{0xAA, 0xBB}), Number(1), BigInt(-1),
	}))
}

func TestEncode_Empty(t *testing.T) {
	assert.Empty(t, Encode(nil, nil))
}

func TestEncode_RoundTripThroughHost(t *testing.T) {
	h, _ := newFakeHost(t)

	params := []Value{
		Number(math.Inf(-1)),
		Number(2.5),
		BigInt(math.MaxInt64),
		Str("héllo"),
		Str(""),
		Buffer(nil),
		Buffer([]byte("raw")),
		Ref(42),
		Bool(true),
		Null(),
		Undefined(),
	}
	got := h.decode(Encode(params, h.Addr))

	require.Len(t, got, len(params))
	assert.Equal(t, math.Inf(-1), got[0])
	assert.Equal(t, 2.5, got[1])
	assert.Equal(t, int64(math.MaxInt64), got[2])
	assert.Equal(t, "héllo", got[3])
	assert.Equal(t, "", got[4])
	assert.Equal(t, []byte{}, got[5])
	assert.Equal(t, []byte("raw"), got[6])
	assert.Equal(t, ObjectID(42), got[7])
	assert.Equal(t, true, got[8])
	assert.Equal(t, "null", got[9])
	assert.Nil(t, got[10])
}

func TestDecode_Inline(t *testing.T) {
	allocs := NewAllocations()

	assert.True(t, Decode(protocol.ResultUndefined, 0, allocs).Equal(Undefined()))
	assert.True(t, Decode(protocol.ResultNull, 0, allocs).Equal(Null()))
	assert.True(t, Decode(protocol.ResultNumber, 12, allocs).Equal(Number(12)))
	assert.True(t, Decode(protocol.ResultRef, 9, allocs).Equal(Ref(9)))
	assert.True(t, Decode(protocol.ResultBool, 1, allocs).Equal(Bool(true)))
	assert.True(t, Decode(protocol.ResultBool, 0, allocs).Equal(Bool(false)))
}

func TestDecode_Slots(t *testing.T) {
	h, b := newFakeHost(t)

	v := b.Invoke("return 'x'")
	assert.True(t, v.Equal(Undefined()))

	h.reply = func(string, []any) uint64 { return h.packString("hello") }
	s, err := b.InvokeString("return {}", Str("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	h.reply = func(string, []any) uint64 { return h.packFloat(math.NaN()) }
	f, err := b.InvokeNumber("return NaN")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))

	h.reply = func(string, []any) uint64 {
		return protocol.Pack(protocol.ResultBuffer, h.writeSlot(nil))
	}
	buf, err := b.InvokeBuffer("return new Uint8Array()")
	require.NoError(t, err)
	assert.Empty(t, buf)

	assert.Equal(t, 0, b.Allocations().Len(), "every slot taken exactly once")
}

func TestDecode_InvalidUTF8IsReplaced(t *testing.T) {
	allocs := NewAllocations()
	index := allocs.Reserve(3)
	copy(allocs.Bytes(index), []byte{'a', 0xFF, 'b'})

	s, err := Decode(protocol.ResultStr, index, allocs).AsString()
	require.NoError(t, err)
	assert.Equal(t, "a�b", s)
}

func TestDecode_BadSlotSize(t *testing.T) {
	allocs := NewAllocations()
	index := allocs.Reserve(4)
	assert.Panics(t, func() { Decode(protocol.ResultFloat, index, allocs) })
}

func TestDecode_UnknownTag(t *testing.T) {
	defer func() {
		r := recover()
		var ce *ContractError
		require.True(t, errors.As(r.(error), &ce))
		assert.Equal(t, "decode", ce.Op)
	}()
	Decode(protocol.ResultTag(99), 0, NewAllocations())
}

func TestTypedAccessors(t *testing.T) {
	_, err := Str("x").AsNumber()
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindNumber, te.Want)
	assert.Equal(t, KindStr, te.Got)
	assert.EqualError(t, err, "invalid type: want number, got string")

	n, err := Number(3).AsNumber()
	require.NoError(t, err)
	assert.Equal(t, 3.0, n)

	id, err := Ref(5).AsRef()
	require.NoError(t, err)
	assert.Equal(t, ObjectID(5), id)

	_, err = Null().AsBool()
	assert.Error(t, err)
}

func TestValueOf(t *testing.T) {
	assert.True(t, ValueOf(nil).Equal(Null()))
	assert.True(t, ValueOf(3).Equal(Number(3)))
	assert.True(t, ValueOf("s").Equal(Str("s")))
	assert.True(t, ValueOf(ObjectID(4)).Equal(Ref(4)))
	assert.True(t, ValueOf(true).Equal(Bool(true)))
	assert.Panics(t, func() { ValueOf(struct{}{}) })

	// 64-bit integers keep their precision.
	assert.True(t, ValueOf(int64(1<<53+1)).Equal(BigInt(1<<53+1)))
	assert.True(t, ValueOf(uint64(7)).Equal(BigInt(7)))
	assert.Panics(t, func() { ValueOf(uint64(math.MaxUint64)) })

	var nilObject *Object
	assert.True(t, ValueOf(nilObject).Equal(Null()))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Number(math.NaN()).Equal(Number(math.NaN())))
	assert.False(t, Number(0).Equal(BigInt(0)))
	assert.False(t, Str("a").Equal(Str("b")))
	assert.True(t, Buffer([]byte{1}).Equal(Buffer([]byte{1})))
	assert.True(t, Undefined().IsNullish())
	assert.False(t, Bool(false).IsNullish())
}
