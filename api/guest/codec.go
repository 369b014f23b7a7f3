package guest

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
)

// Synthesize substitutes the first n placeholders of template with p0..pn-1
// and wraps the result in a host function literal taking those parameters.
// The number of placeholders must equal n.
func Synthesize(template string, n int) string {
	if got := strings.Count(template, protocol.Placeholder); got != n {
		violation("invoke", "template has %d placeholders for %d parameters: %q", got, n, template)
	}

	names := make([]string, n)
	var body strings.Builder
	body.Grow(len(template) + 2*n)
	rest := template
	for i := 0; i < n; i++ {
		names[i] = "p" + strconv.Itoa(i)
		pos := strings.Index(rest, protocol.Placeholder)
		body.WriteString(rest[:pos])
		body.WriteString(names[i])
		rest = rest[pos+len(protocol.Placeholder):]
	}
	body.WriteString(rest)

	return "function(" + strings.Join(names, ",") + "){ " + body.String() + " }"
}

// AddrFunc returns the linear memory address of a string's bytes. Strings
// are sent by reference, so the string must stay reachable until the
// boundary call that carries it returns.
type AddrFunc func(s string) uint32

// Encode serializes params in wire order.
func Encode(params []Value, addr AddrFunc) []byte {
	buf := make([]byte, 0, encodedSize(params))
	for _, v := range params {
		buf = appendValue(buf, v, addr)
	}
	return buf
}

func encodedSize(params []Value) int {
	n := 0
	for _, v := range params {
		n++
		switch v.kind {
		case KindNumber:
			n += protocol.SizeNumber
		case KindBigInt:
			n += protocol.SizeBigInt
		case KindRef:
			n += protocol.SizeRef
		case KindStr:
			n += protocol.SizeStr
		case KindBuffer:
			n += protocol.SizeLength + len(v.buf)
		}
	}
	return n
}

func appendValue(buf []byte, v Value, addr AddrFunc) []byte {
	switch v.kind {
	case KindUndefined:
		return append(buf, byte(protocol.ParamUndefined))
	case KindNull:
		return append(buf, byte(protocol.ParamNull))
	case KindBool:
		if v.b {
			return append(buf, byte(protocol.ParamTrue))
		}
		return append(buf, byte(protocol.ParamFalse))
	case KindNumber:
		buf = append(buf, byte(protocol.ParamNumber))
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.num))
	case KindBigInt:
		buf = append(buf, byte(protocol.ParamBigInt))
		return binary.LittleEndian.AppendUint64(buf, uint64(v.big))
	case KindStr:
		buf = append(buf, byte(protocol.ParamStr))
		buf = binary.LittleEndian.AppendUint32(buf, addr(v.str))
		return binary.LittleEndian.AppendUint32(buf, uint32(len(v.str)))
	case KindBuffer:
		buf = append(buf, byte(protocol.ParamBuffer))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.buf)))
		return append(buf, v.buf...)
	case KindRef:
		buf = append(buf, byte(protocol.ParamRef))
		return binary.LittleEndian.AppendUint32(buf, uint32(v.ref))
	default:
		violation("encode", "unknown value kind %d", v.kind)
		return nil
	}
}

// Decode turns a packed result back into a Value. Variable-length kinds
// move their bytes out of the allocation table.
func Decode(tag protocol.ResultTag, value uint32, allocs *Allocations) Value {
	switch tag {
	case protocol.ResultUndefined:
		return Undefined()
	case protocol.ResultNull:
		return Null()
	case protocol.ResultNumber:
		return Number(float64(value))
	case protocol.ResultRef:
		return Ref(ObjectID(value))
	case protocol.ResultBool:
		return Bool(value == 1)
	case protocol.ResultStr:
		return Str(strings.ToValidUTF8(string(allocs.Take(value)), "�"))
	case protocol.ResultBuffer:
		return Buffer(allocs.Take(value))
	case protocol.ResultFloat:
		return Number(math.Float64frombits(binary.LittleEndian.Uint64(fixed8(allocs.Take(value)))))
	case protocol.ResultBigInt:
		return BigInt(int64(binary.LittleEndian.Uint64(fixed8(allocs.Take(value)))))
	default:
		violation("decode", "unknown result tag %d", tag)
		return Value{}
	}
}

func fixed8(b []byte) []byte {
	if len(b) != 8 {
		violation("decode", "expected 8-byte slot, got %d bytes", len(b))
	}
	return b
}
