package wasm

import (
	"errors"

	"github.com/tetratelabs/wazero/api"
)

var errOutOfRange = errors.New("out of range")

// Memory provides bounds-checked access to a guest's linear memory.
//
// Guests own their memory: the host never allocates in it. Strings are
// read in place at guest-provided addresses, and results are written only
// into buffers the guest reserved through reserve_allocation.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

// ReadBytes copies length bytes at ptr out of guest memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if m.mem == nil {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length, Err: errors.New("module has no memory")}
	}
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length, Err: errOutOfRange}
	}
	// The view is invalidated if the guest grows its memory.
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// ReadString reads a UTF-8 string of length bytes at ptr.
func (m *Memory) ReadString(ptr uint32, length uint32) (string, error) {
	b, err := m.ReadBytes(ptr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBytes writes data at ptr.
func (m *Memory) WriteBytes(ptr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if m.mem == nil || !m.mem.Write(ptr, data) {
		return &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data)), Err: errOutOfRange}
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}
