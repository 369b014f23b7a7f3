package host

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
)

var errShort = errors.New("truncated")

// Reader reads guest linear memory.
type Reader interface {
	Read(ctx context.Context, addr, length uint32) ([]byte, error)
}

// Literals decodes an encoded parameter list into JavaScript expressions,
// one per parameter. Strings are read from guest memory through r.
func Literals(ctx context.Context, r Reader, params []byte) ([]string, error) {
	var out []string
	off := 0
	take := func(n int) ([]byte, error) {
		if len(params)-off < n {
			return nil, &ParamError{Offset: off, Reason: "payload", Err: errShort}
		}
		b := params[off : off+n]
		off += n
		return b, nil
	}

	for off < len(params) {
		start := off
		tag := protocol.ParamTag(params[off])
		off++

		switch tag {
		case protocol.ParamUndefined:
			out = append(out, "undefined")
		case protocol.ParamNull:
			out = append(out, "null")
		case protocol.ParamTrue:
			out = append(out, "true")
		case protocol.ParamFalse:
			out = append(out, "false")
		case protocol.ParamNumber:
			b, err := take(protocol.SizeNumber)
			if err != nil {
				return nil, err
			}
			out = append(out, FormatNumber(math.Float64frombits(binary.LittleEndian.Uint64(b))))
		case protocol.ParamBigInt:
			b, err := take(protocol.SizeBigInt)
			if err != nil {
				return nil, err
			}
			out = append(out, strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10)+"n")
		case protocol.ParamRef:
			b, err := take(protocol.SizeRef)
			if err != nil {
				return nil, err
			}
			out = append(out, ObjectExpr(binary.LittleEndian.Uint32(b)))
		case protocol.ParamStr:
			b, err := take(protocol.SizeStr)
			if err != nil {
				return nil, err
			}
			addr := binary.LittleEndian.Uint32(b)
			n := binary.LittleEndian.Uint32(b[4:])
			s, err := readString(ctx, r, addr, n)
			if err != nil {
				return nil, &ParamError{Offset: start, Reason: "string", Err: err}
			}
			out = append(out, s)
		case protocol.ParamBuffer:
			b, err := take(protocol.SizeLength)
			if err != nil {
				return nil, err
			}
			data, err := take(int(binary.LittleEndian.Uint32(b)))
			if err != nil {
				return nil, err
			}
			out = append(out, BufferExpr(data))
		default:
			return nil, &ParamError{Offset: start, Reason: "unknown tag " + strconv.Itoa(int(tag))}
		}
	}
	return out, nil
}

func readString(ctx context.Context, r Reader, addr, n uint32) (string, error) {
	if n == 0 {
		return `""`, nil
	}
	b, err := r.Read(ctx, addr, n)
	if err != nil {
		return "", err
	}
	return StringExpr(string(b)), nil
}

// FormatNumber renders f as a JavaScript number literal.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// StringExpr renders s as a JavaScript string literal. Invalid UTF-8 is
// replaced with U+FFFD.
func StringExpr(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal never fails for a string.
		panic(err)
	}
	return string(b)
}

// BufferExpr renders data as a Uint8Array constructor.
func BufferExpr(data []byte) string {
	var b strings.Builder
	b.Grow(len(data)*4 + 16)
	b.WriteString("new Uint8Array([")
	for i, c := range data {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(c)))
	}
	b.WriteString("])")
	return b.String()
}

// ObjectExpr is the expression for a stored object.
func ObjectExpr(id uint32) string {
	return "__objects[" + strconv.FormatUint(uint64(id), 10) + "]"
}
