// Package wasmtest assembles small guest modules for tests that need a
// real wasm binary without a toolchain targeting wasip1.
package wasmtest

const (
	// CodeAddr is where the routine of Guest.Code is placed in memory.
	CodeAddr = 256
	// AllocAddr is the address allocation_pointer returns for every slot.
	AllocAddr = 1024
)

// Value types.
const (
	I32 = 0x7f
	I64 = 0x7e
)

// Guest describes a module exporting the reentry surface with no-op
// dispatch exports, a constant abi_version and a "spin" export that never
// returns. When Code is set the module imports env.__invoke and exports
// "run", which invokes Code without parameters and returns the packed
// result.
type Guest struct {
	ABI     int32
	Code    string
	Exports []string // overrides the export names, in function order
}

func uleb(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(n int32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func wasmSection(id byte, items ...[]byte) []byte {
	var content []byte
	content = append(content, uleb(uint32(len(items)))...)
	for _, it := range items {
		content = append(content, it...)
	}
	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)
	return append(out, content...)
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint32(len(results)))...)
	return append(out, results...)
}

func funcBody(instrs ...byte) []byte {
	body := append([]byte{0x00}, instrs...)
	body = append(body, 0x0b)
	return append(uleb(uint32(len(body))), body...)
}

func i32Const(n int32) []byte {
	return append([]byte{0x41}, sleb(n)...)
}

// Bytes assembles the module. Defined functions, in order:
// reserve_allocation, allocation_pointer, dispatch_object, dispatch_empty,
// wake_future, abi_version, spin and, when code is set, run.
func (g Guest) Bytes() []byte {
	// Type indices 0-7, referenced below.
	types := wasmSection(1,
		funcType([]byte{I32}, []byte{I32}),
		funcType([]byte{I32, I32}, nil),
		funcType([]byte{I32}, nil),
		funcType([]byte{I32, I32, I32}, nil),
		funcType(nil, []byte{I32}),
		funcType([]byte{I32, I32, I32, I32}, []byte{I64}),
		funcType(nil, []byte{I64}),
		funcType(nil, nil),
	)

	withInvoke := g.Code != ""
	var imports []byte
	var base uint32
	if withInvoke {
		imp := append(wasmName("env"), wasmName("__invoke")...)
		imp = append(imp, 0x00, 0x05)
		imports = wasmSection(2, imp)
		base = 1
	}

	typeIdx := [][]byte{{0x00}, {0x00}, {0x01}, {0x02}, {0x03}, {0x04}, {0x07}}
	bodies := [][]byte{
		funcBody(i32Const(0)...),
		funcBody(i32Const(AllocAddr)...),
		funcBody(),
		funcBody(),
		funcBody(),
		funcBody(i32Const(g.ABI)...),
		funcBody(0x03, 0x40, 0x0c, 0x00, 0x0b), // loop br 0 end
	}
	if withInvoke {
		typeIdx = append(typeIdx, []byte{0x06})
		var run []byte
		run = append(run, i32Const(CodeAddr)...)
		run = append(run, i32Const(int32(len(g.Code)))...)
		run = append(run, i32Const(0)...)
		run = append(run, i32Const(0)...)
		run = append(run, 0x10, 0x00) // call __invoke
		bodies = append(bodies, funcBody(run...))
	}

	names := g.Exports
	if names == nil {
		names = []string{
			"reserve_allocation", "allocation_pointer", "dispatch_object",
			"dispatch_empty", "wake_future", "abi_version", "spin", "run",
		}
	}
	exports := [][]byte{append(wasmName("memory"), 0x02, 0x00)}
	for i, name := range names {
		if i >= len(bodies) {
			break
		}
		exp := append(wasmName(name), 0x00)
		exports = append(exports, append(exp, uleb(base+uint32(i))...))
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, types...)
	out = append(out, imports...)
	out = append(out, wasmSection(3, typeIdx...)...)
	out = append(out, wasmSection(5, []byte{0x00, 0x01})...)
	out = append(out, wasmSection(7, exports...)...)
	out = append(out, wasmSection(10, bodies...)...)
	if withInvoke {
		seg := []byte{0x00}
		seg = append(seg, i32Const(CodeAddr)...)
		seg = append(seg, 0x0b)
		seg = append(seg, wasmName(g.Code)...)
		out = append(out, wasmSection(11, seg)...)
	}
	return out
}

// Importing builds a module whose only content is one function import.
func Importing(module, name string, params, results []byte) []byte {
	imp := append(wasmName(module), wasmName(name)...)
	imp = append(imp, 0x00, 0x00)
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, wasmSection(1, funcType(params, results))...)
	return append(out, wasmSection(2, imp)...)
}

// Empty is the smallest valid module.
func Empty() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}
