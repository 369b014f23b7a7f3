package guest

import (
	"fmt"
	"math"
)

// Kind identifies the active variant of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindBigInt
	KindStr
	KindBuffer
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindBigInt:
		return "bigint"
	case KindStr:
		return "string"
	case KindBuffer:
		return "buffer"
	case KindRef:
		return "ref"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a value crossing the guest/host boundary.
//
// Numbers follow host semantics and are 64-bit floats. Integers beyond
// 2^53 lose precision as a Number; callers must use BigInt for them.
type Value struct {
	kind Kind
	b    bool
	num  float64
	big  int64
	str  string
	buf  []byte
	ref  ObjectID
}

// Undefined returns the host's undefined.
func Undefined() Value { return Value{kind: KindUndefined} }

// Null returns the host's null.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a host number, a 64-bit float.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// BigInt wraps an integer that must keep all 64 bits on the host.
func BigInt(i int64) Value { return Value{kind: KindBigInt, big: i} }

// Str wraps a string. The host reads its bytes in place, so s must stay
// reachable until the call it is passed to returns.
func Str(s string) Value { return Value{kind: KindStr, str: s} }

// Buffer wraps raw bytes, copied to the host as a byte array.
func Buffer(b []byte) Value { return Value{kind: KindBuffer, buf: b} }

// Ref borrows a host object by id.
func Ref(id ObjectID) Value { return Value{kind: KindRef, ref: id} }

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNullish reports whether v is Undefined or Null.
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// ValueOf converts common Go scalars into a Value. int, int32, uint32 and
// the float types become Number; int64 and uint64 become BigInt so no
// precision is lost. A nil *Object is Null. Unsupported types, and uint64
// values beyond the int64 range, panic.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case int64:
		return BigInt(t)
	case uint64:
		if t > math.MaxInt64 {
			panic(fmt.Sprintf("guest: %d overflows a host bigint", t))
		}
		return BigInt(int64(t))
	case string:
		return Str(t)
	case []byte:
		return Buffer(t)
	case ObjectID:
		return Ref(t)
	case *Object:
		if t == nil {
			return Null()
		}
		return t.Value()
	default:
		panic(fmt.Sprintf("guest: no value conversion for %T", x))
	}
}

// AsBool returns the payload of a Bool, or a *TypeError for any other kind.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, &TypeError{Want: KindBool, Got: v.kind}
	}
	return v.b, nil
}

// AsNumber returns the payload of a Number, or a *TypeError for any other kind.
func (v Value) AsNumber() (float64, error) {
	if v.kind != KindNumber {
		return 0, &TypeError{Want: KindNumber, Got: v.kind}
	}
	return v.num, nil
}

// AsBigInt returns the payload of a BigInt, or a *TypeError for any other kind.
func (v Value) AsBigInt() (int64, error) {
	if v.kind != KindBigInt {
		return 0, &TypeError{Want: KindBigInt, Got: v.kind}
	}
	return v.big, nil
}

// AsString returns the payload of a Str, or a *TypeError for any other kind.
func (v Value) AsString() (string, error) {
	if v.kind != KindStr {
		return "", &TypeError{Want: KindStr, Got: v.kind}
	}
	return v.str, nil
}

// AsBuffer returns the payload of a Buffer, or a *TypeError for any other kind.
func (v Value) AsBuffer() ([]byte, error) {
	if v.kind != KindBuffer {
		return nil, &TypeError{Want: KindBuffer, Got: v.kind}
	}
	return v.buf, nil
}

// AsRef returns the payload of a Ref, or a *TypeError for any other kind.
func (v Value) AsRef() (ObjectID, error) {
	if v.kind != KindRef {
		return 0, &TypeError{Want: KindRef, Got: v.kind}
	}
	return v.ref, nil
}

// Equal reports whether two values have the same kind and content.
// Numbers compare bitwise so NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return math.Float64bits(v.num) == math.Float64bits(o.num)
	case KindBigInt:
		return v.big == o.big
	case KindStr:
		return v.str == o.str
	case KindBuffer:
		return string(v.buf) == string(o.buf)
	case KindRef:
		return v.ref == o.ref
	default:
		return true
	}
}

// String renders v for logs.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.b)
	case KindNumber:
		return fmt.Sprintf("Number(%g)", v.num)
	case KindBigInt:
		return fmt.Sprintf("BigInt(%d)", v.big)
	case KindStr:
		return fmt.Sprintf("Str(%q)", v.str)
	case KindBuffer:
		return fmt.Sprintf("Buffer(%d bytes)", len(v.buf))
	case KindRef:
		return fmt.Sprintf("Ref(%d)", v.ref)
	default:
		return v.kind.String()
	}
}
