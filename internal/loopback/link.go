// Package loopback links a guest bridge to a script host inside one
// process. Strings and result buffers live in Go memory instead of wasm
// linear memory, and guest traps become errors of the reentry call.
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/woxQAQ/jsbridge/api/guest"
	"github.com/woxQAQ/jsbridge/internal/host"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// firstAddr keeps 0 free for empty strings.
const firstAddr = 8

// Link implements guest.Host on one side and host.Guest on the other.
type Link struct {
	ctx    context.Context
	host   *host.Host
	bridge *guest.Bridge
	logger *zap.Logger

	mu    sync.Mutex
	arena map[uint32]string
	next  uint32
	depth int
}

var (
	_ guest.Host = (*Link)(nil)
	_ host.Guest = (*Link)(nil)
)

// New links a fresh guest bridge to h. Options are passed to the bridge;
// the logger is used by both sides.
func New(ctx context.Context, h *host.Host, logger *zap.Logger, opts ...guest.Option) *Link {
	l := &Link{
		ctx:    ctx,
		host:   h,
		logger: logger.With(zap.String("component", "loopback")),
		arena:  make(map[uint32]string),
		next:   firstAddr,
	}
	opts = append([]guest.Option{guest.WithLogger(logger)}, opts...)
	l.bridge = guest.New(l, opts...)
	return l
}

// Bridge returns the guest side of the link.
func (l *Link) Bridge() *guest.Bridge {
	return l.bridge
}

// Host returns the host side of the link.
func (l *Link) Host() *host.Host {
	return l.host
}

// Addr interns s until the outermost Invoke returns.
func (l *Link) Addr(s string) uint32 {
	if len(s) == 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	addr := l.next
	l.next += uint32(len(s))
	l.arena[addr] = s
	return addr
}

// Invoke runs a routine on the host. A host failure is a trap, raised as a
// panic on the guest side.
func (l *Link) Invoke(code string, params []byte) uint64 {
	l.enter()
	defer l.leave()

	packed, err := l.host.Invoke(l.ctx, l, code, params)
	if err != nil {
		panic(fmt.Errorf("%s: %w", protocol.ImportInvoke, err))
	}
	return packed
}

// Release frees a host object.
func (l *Link) Release(id uint32) {
	if err := l.host.Release(id); err != nil {
		panic(fmt.Errorf("%s: %w", protocol.ImportDeallocate, err))
	}
}

func (l *Link) enter() {
	l.mu.Lock()
	l.depth++
	l.mu.Unlock()
}

func (l *Link) leave() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.depth--
	if l.depth == 0 {
		clear(l.arena)
		l.next = firstAddr
	}
}

// Read returns interned string bytes.
func (l *Link) Read(_ context.Context, addr, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	l.mu.Lock()
	s, ok := l.arena[addr]
	l.mu.Unlock()
	if !ok || int(length) > len(s) {
		return nil, fmt.Errorf("read of %d bytes at %d: not an interned string", length, addr)
	}
	return []byte(s[:length]), nil
}

func (l *Link) ReserveAllocation(_ context.Context, size uint32) (index uint32, err error) {
	err = l.trap(protocol.ExportReserveAllocation, func() {
		index = l.bridge.ReserveAllocation(size)
	})
	return index, err
}

func (l *Link) WriteAllocation(_ context.Context, index uint32, data []byte) error {
	return l.trap(protocol.ExportAllocationPointer, func() {
		buf := l.bridge.Allocations().Bytes(index)
		if len(buf) < len(data) {
			panic(fmt.Errorf("slot %d holds %d bytes, write of %d", index, len(buf), len(data)))
		}
		copy(buf, data)
	})
}

func (l *Link) DispatchObject(_ context.Context, cb, obj uint32) error {
	return l.trap(protocol.ExportDispatchObject, func() {
		l.bridge.DispatchObject(guest.CallbackID(cb), guest.ObjectID(obj))
	})
}

func (l *Link) DispatchEmpty(_ context.Context, cb uint32) error {
	return l.trap(protocol.ExportDispatchEmpty, func() {
		l.bridge.DispatchEmpty(guest.CallbackID(cb))
	})
}

func (l *Link) WakeFuture(_ context.Context, fid uint32, tag protocol.ResultTag, value uint32) error {
	return l.trap(protocol.ExportWakeFuture, func() {
		l.bridge.WakeFuture(guest.FutureID(fid), tag, value)
	})
}

// Call runs fn as a guest export, e.g. an app entry point.
func (l *Link) Call(name string, fn func()) error {
	return l.trap(name, fn)
}

// trap converts a guest panic into an error, as a wasm trap would surface
// to the host.
func (l *Link) trap(export string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TrapError{Export: export, Value: r}
			l.logger.Debug("Guest trapped", zap.String("export", export), zap.Error(err))
		}
	}()
	fn()
	return nil
}

// TrapError occurs when guest code panics during a reentry call.
type TrapError struct {
	Export string
	Value  any
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest trapped in '%s': %v", e.Export, e.Value)
}

func (e *TrapError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
