package guest

import (
	"runtime"
	"sync/atomic"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// Host is the set of boundary operations the guest imports.
type Host interface {
	// Invoke runs a synthesized routine with encoded params and returns
	// the packed result word.
	Invoke(code string, params []byte) uint64

	// Release frees a host-resident object.
	Release(id uint32)

	// Addr returns the linear memory address of a string's bytes.
	Addr(s string) uint32
}

// Bridge owns the guest-side state of one guest/host boundary: the
// allocation table, the callback registry and the future runtime.
//
// All entry points must be called from the single guest thread of
// execution; at most one host reentry may be in flight at any time.
type Bridge struct {
	host        Host
	allocs      *Allocations
	callbacks   *Registry
	runtime     *Runtime
	logger      *zap.Logger
	liveObjects atomic.Int64
}

type options struct {
	logger *zap.Logger
	sched  Scheduler
}

// Option configures a Bridge.
type Option func(*options)

// WithLogger sets the logger used for boundary traffic. It must not write
// through the same bridge (see NewConsoleCore).
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithScheduler replaces the zero-delay host timer used to repoll tasks.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		o.sched = s
	}
}

// New creates a bridge bound to host.
func New(host Host, opts ...Option) *Bridge {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	b := &Bridge{
		host:      host,
		allocs:    NewAllocations(),
		callbacks: NewRegistry(o.logger),
		logger:    o.logger.With(zap.String("component", "guest-bridge")),
	}
	sched := o.sched
	if sched == nil {
		sched = SchedulerFunc(b.deferTimer)
	}
	b.runtime = NewRuntime(sched, o.logger)
	b.runtime.release = b.discard
	return b
}

// Allocations returns the allocation table.
func (b *Bridge) Allocations() *Allocations { return b.allocs }

// Callbacks returns the callback registry.
func (b *Bridge) Callbacks() *Registry { return b.callbacks }

// Runtime returns the future runtime.
func (b *Bridge) Runtime() *Runtime { return b.runtime }

// Invoke synthesizes a host routine from template, runs it with params and
// decodes its result. A Ref result is owned by the caller: adopt it with
// Adopt or release it with ReleaseID.
func (b *Bridge) Invoke(template string, params ...Value) Value {
	code := Synthesize(template, len(params))
	encoded := Encode(params, b.host.Addr)
	packed := b.host.Invoke(code, encoded)
	runtime.KeepAlive(params)

	tag, value := protocol.Unpack(packed)
	b.logger.Debug("Invoked host routine",
		zap.String("template", template),
		zap.Int("params", len(params)),
		zap.Uint32("result_tag", uint32(tag)),
	)
	return Decode(tag, value, b.allocs)
}

// Exec invokes template and discards the result, releasing it if the host
// returned an object.
func (b *Bridge) Exec(template string, params ...Value) {
	b.discard(b.Invoke(template, params...))
}

func (b *Bridge) discard(v Value) {
	if v.kind == KindRef {
		b.ReleaseID(v.ref)
	}
}

// InvokeObject invokes template and adopts the returned object.
func (b *Bridge) InvokeObject(template string, params ...Value) (*Object, error) {
	v := b.Invoke(template, params...)
	id, err := v.AsRef()
	if err != nil {
		return nil, err
	}
	return b.Adopt(id), nil
}

func (b *Bridge) InvokeString(template string, params ...Value) (string, error) {
	v := b.Invoke(template, params...)
	b.discard(v)
	return v.AsString()
}

func (b *Bridge) InvokeNumber(template string, params ...Value) (float64, error) {
	v := b.Invoke(template, params...)
	b.discard(v)
	return v.AsNumber()
}

func (b *Bridge) InvokeBigInt(template string, params ...Value) (int64, error) {
	v := b.Invoke(template, params...)
	b.discard(v)
	return v.AsBigInt()
}

func (b *Bridge) InvokeBool(template string, params ...Value) (bool, error) {
	v := b.Invoke(template, params...)
	b.discard(v)
	return v.AsBool()
}

func (b *Bridge) InvokeBuffer(template string, params ...Value) ([]byte, error) {
	v := b.Invoke(template, params...)
	b.discard(v)
	return v.AsBuffer()
}

func (b *Bridge) mustObject(template string, params ...Value) *Object {
	obj, err := b.InvokeObject(template, params...)
	if err != nil {
		violation("invoke", "%s: %v", template, err)
	}
	return obj
}

// BlockOn drives task on this bridge's runtime.
func (b *Bridge) BlockOn(task Task) bool {
	return b.runtime.BlockOn(task)
}

// Stats is a snapshot of the bridge tables.
type Stats struct {
	Callbacks   int
	Futures     int
	Allocations int
	Tasks       int
	Objects     int64
}

// Stats returns the current table sizes.
func (b *Bridge) Stats() Stats {
	return Stats{
		Callbacks:   b.callbacks.Len(),
		Futures:     b.runtime.Pending(),
		Allocations: b.allocs.Len(),
		Tasks:       b.runtime.Tasks(),
		Objects:     b.liveObjects.Load(),
	}
}
