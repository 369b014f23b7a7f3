package guest

import "sync"

// Allocations holds guest-owned buffers the host writes variable-length
// results into. Each slot is reserved once and taken once; indices are
// never reused so a stale take always fails.
type Allocations struct {
	mu    sync.Mutex
	slots map[uint32][]byte
	next  uint32
}

// NewAllocations creates an empty allocation table.
func NewAllocations() *Allocations {
	return &Allocations{slots: make(map[uint32][]byte)}
}

// Reserve appends a zero-filled buffer of size bytes and returns its index.
func (a *Allocations) Reserve(size uint32) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	index := a.next
	a.next++
	a.slots[index] = make([]byte, size)
	return index
}

// Bytes returns the writable buffer of a live slot.
func (a *Allocations) Bytes(index uint32) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.slots[index]
	if !ok {
		violation("allocation", "slot %d is not live", index)
	}
	return buf
}

// Take removes a slot and returns ownership of its buffer.
func (a *Allocations) Take(index uint32) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.slots[index]
	if !ok {
		violation("allocation", "slot %d already taken or never reserved", index)
	}
	delete(a.slots, index)
	return buf
}

// Len returns the number of reserved, untaken slots.
func (a *Allocations) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}
