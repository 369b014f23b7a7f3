package host

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/woxQAQ/jsbridge/internal/script"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// Guest is the host's view of a loaded guest: its memory and its reentry
// exports.
type Guest interface {
	Reader

	// ReserveAllocation reserves a zero-filled guest buffer.
	ReserveAllocation(ctx context.Context, size uint32) (uint32, error)

	// WriteAllocation fills a reserved buffer.
	WriteAllocation(ctx context.Context, index uint32, data []byte) error

	DispatchObject(ctx context.Context, cb, obj uint32) error
	DispatchEmpty(ctx context.Context, cb uint32) error
	WakeFuture(ctx context.Context, fid uint32, tag protocol.ResultTag, value uint32) error
}

// Host executes guest routines in a script engine.
type Host struct {
	engine *script.Engine
	logger *zap.Logger

	invocations atomic.Int64
	releases    atomic.Int64
	badReleases atomic.Int64
	packedBytes atomic.Int64
}

// Stats counts boundary traffic.
type Stats struct {
	Invocations int64
	Releases    int64
	BadReleases int64
	PackedBytes int64
}

// New creates a host running routines in engine.
func New(engine *script.Engine, logger *zap.Logger) *Host {
	return &Host{
		engine: engine,
		logger: logger.With(zap.String("component", "host")),
	}
}

// Engine returns the script engine.
func (h *Host) Engine() *script.Engine {
	return h.engine
}

// Invoke runs routine code with encoded params and packs the result into
// g. An exception thrown by the routine is returned as a *script.ScriptError.
func (h *Host) Invoke(ctx context.Context, g Guest, code string, params []byte) (uint64, error) {
	args, err := Literals(ctx, g, params)
	if err != nil {
		return 0, err
	}

	h.invocations.Add(1)
	h.logger.Debug("Invoking routine",
		zap.String("code", code),
		zap.Int("params", len(args)),
	)

	r, err := h.engine.Invoke(code, args)
	if err != nil {
		return 0, err
	}
	return h.Pack(ctx, g, r)
}

// Release drops a host object the guest no longer references. Releasing
// an id that is not live is logged and otherwise ignored.
func (h *Host) Release(id uint32) error {
	ok, err := h.engine.Release(id)
	if err != nil {
		return err
	}
	h.releases.Add(1)
	if !ok {
		h.badReleases.Add(1)
		h.logger.Warn("Release of unknown host object", zap.Uint32("object_id", id))
	}
	return nil
}

// Pack converts a script result into a packed word, writing
// variable-length payloads into a guest allocation.
func (h *Host) Pack(ctx context.Context, g Guest, r script.Result) (uint64, error) {
	switch r.Type {
	case script.TypeUndefined:
		return protocol.Pack(protocol.ResultUndefined, 0), nil
	case script.TypeNull:
		return protocol.Pack(protocol.ResultNull, 0), nil
	case script.TypeBool:
		if r.Bool {
			return protocol.Pack(protocol.ResultBool, 1), nil
		}
		return protocol.Pack(protocol.ResultBool, 0), nil
	case script.TypeU32:
		return protocol.Pack(protocol.ResultNumber, r.U32), nil
	case script.TypeRef:
		return protocol.Pack(protocol.ResultRef, r.ID), nil
	case script.TypeF64:
		f, err := strconv.ParseFloat(r.Float, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, &PackError{Type: r.Type, Value: r.Float, Err: err}
		}
		return h.slot(ctx, g, protocol.ResultFloat, binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)))
	case script.TypeBigInt:
		n, err := strconv.ParseInt(r.BigInt, 10, 64)
		if err != nil {
			return 0, &PackError{Type: r.Type, Value: r.BigInt, Err: err}
		}
		return h.slot(ctx, g, protocol.ResultBigInt, binary.LittleEndian.AppendUint64(nil, uint64(n)))
	case script.TypeStr:
		return h.slot(ctx, g, protocol.ResultStr, []byte(r.Str))
	case script.TypeBuf:
		data := make([]byte, len(r.Data))
		for i, c := range r.Data {
			if c < 0 || c > 255 {
				return 0, &PackError{Type: r.Type, Value: strconv.Itoa(c), Err: errors.New("byte out of range")}
			}
			data[i] = byte(c)
		}
		return h.slot(ctx, g, protocol.ResultBuffer, data)
	default:
		return 0, &PackError{Type: r.Type, Err: errors.New("unknown result type")}
	}
}

func (h *Host) slot(ctx context.Context, g Guest, tag protocol.ResultTag, data []byte) (uint64, error) {
	index, err := g.ReserveAllocation(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if len(data) > 0 {
		if err := g.WriteAllocation(ctx, index, data); err != nil {
			return 0, err
		}
	}
	h.packedBytes.Add(int64(len(data)))
	return protocol.Pack(tag, index), nil
}

// Stats returns the traffic counters.
func (h *Host) Stats() Stats {
	return Stats{
		Invocations: h.invocations.Load(),
		Releases:    h.releases.Load(),
		BadReleases: h.badReleases.Load(),
		PackedBytes: h.packedBytes.Load(),
	}
}
