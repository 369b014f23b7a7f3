package script

import (
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"modernc.org/quickjs"
)

//go:embed prelude.js
var prelude string

// Engine is a JavaScript context holding the host side of one guest: the
// object store, the event queue, the timer queue and the console buffer.
// It is safe for concurrent use but never runs two scripts at once.
type Engine struct {
	mu     sync.Mutex
	vm     *quickjs.VM
	logger *zap.Logger
	closed bool
}

// Result is a routine's return value as packed by the prelude.
type Result struct {
	Type   string `json:"t"`
	Bool   bool   `json:"b"`
	U32    uint32 `json:"n"`
	Float  string `json:"f"`
	BigInt string `json:"s"`
	Str    string `json:"v"`
	Data   []int  `json:"d"`
	ID     uint32 `json:"id"`
}

// Result types.
const (
	TypeUndefined = "undefined"
	TypeNull      = "null"
	TypeBool      = "bool"
	TypeU32       = "u32"
	TypeF64       = "f64"
	TypeBigInt    = "bigint"
	TypeStr       = "str"
	TypeBuf       = "buf"
	TypeRef       = "ref"
)

// Event is a reentry queued by a trampoline.
type Event struct {
	Kind   string `json:"k"`
	ID     uint32 `json:"id"`
	Object uint32 `json:"o"`
	Result Result `json:"r"`
}

// Event kinds.
const (
	EventObject = "object"
	EventEmpty  = "empty"
	EventFuture = "future"
)

// Tick reports one pass over the timer queue.
type Tick struct {
	Ran bool `json:"ran"`
	// Next is the due time in milliseconds of the earliest queued timer,
	// or negative when the queue is empty.
	Next float64 `json:"next"`
}

// ConsoleMessage is one buffered console call.
type ConsoleMessage struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

// New creates an engine with the prelude loaded.
func New(logger *zap.Logger) (*Engine, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, &ScriptError{Source: "vm", Err: err}
	}

	e := &Engine{
		vm:     vm,
		logger: logger.With(zap.String("component", "script-engine")),
	}
	if err := e.Load("prelude.js", prelude); err != nil {
		vm.Close()
		return nil, err
	}
	return e, nil
}

// Load evaluates a script in the global scope.
func (e *Engine) Load(name, source string) error {
	if _, err := e.eval(name, source); err != nil {
		return err
	}
	e.logger.Debug("Script loaded", zap.String("script", name), zap.Int("size", len(source)))
	return nil
}

func (e *Engine) eval(op, code string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, &ClosedError{}
	}
	v, err := e.vm.Eval(code, quickjs.EvalGlobal)
	if err != nil {
		return nil, &ScriptError{Source: op, Err: err}
	}
	return v, nil
}

func (e *Engine) evalString(op, code string) (string, error) {
	v, err := e.eval(op, code)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &ResultError{Op: op, Result: v}
	}
	return s, nil
}

func (e *Engine) evalJSON(op, code string, out any) error {
	s, err := e.evalString(op, code)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return &ResultError{Op: op, Result: s, Err: err}
	}
	return nil
}

// Invoke calls the function expression fn with argument expressions args
// and returns its packed result.
func (e *Engine) Invoke(fn string, args []string) (Result, error) {
	var b strings.Builder
	b.Grow(len(fn) + 16)
	b.WriteString("__invoke((")
	b.WriteString(fn)
	b.WriteString("),[")
	b.WriteString(strings.Join(args, ","))
	b.WriteString("])")

	var r Result
	err := e.evalJSON("invoke", b.String(), &r)
	return r, err
}

// Release drops a stored object. It reports false if the id was not live.
func (e *Engine) Release(id uint32) (bool, error) {
	s, err := e.evalString("release", "String(__release("+strconv.FormatUint(uint64(id), 10)+"))")
	if err != nil {
		return false, err
	}
	return s == "true", nil
}

// Live returns the number of stored objects.
func (e *Engine) Live() (int, error) {
	return e.evalInt("live", "__live()")
}

// Pending returns the number of queued timers and events.
func (e *Engine) Pending() (int, error) {
	return e.evalInt("pending", "__pending()")
}

func (e *Engine) evalInt(op, code string) (int, error) {
	s, err := e.evalString(op, "String("+code+")")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ResultError{Op: op, Result: s, Err: err}
	}
	return n, nil
}

// Next dequeues the oldest event, or returns nil if none is queued.
func (e *Engine) Next() (*Event, error) {
	var ev *Event
	if err := e.evalJSON("next", "__next()", &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Tick advances the timer clock to now and runs at most one due timer.
func (e *Engine) Tick(now time.Duration) (Tick, error) {
	ms := strconv.FormatInt(now.Milliseconds(), 10)
	var t Tick
	err := e.evalJSON("tick", "__tick("+ms+")", &t)
	return t, err
}

// DrainConsole returns and clears the buffered console output.
func (e *Engine) DrainConsole() ([]ConsoleMessage, error) {
	var msgs []ConsoleMessage
	if err := e.evalJSON("console", "__drainConsole()", &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FlushConsole writes buffered console output to logger.
func (e *Engine) FlushConsole(logger *zap.Logger) error {
	msgs, err := e.DrainConsole()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		switch m.Level {
		case "debug":
			logger.Debug(m.Msg)
		case "warn":
			logger.Warn(m.Msg)
		case "error":
			logger.Error(m.Msg)
		default:
			logger.Info(m.Msg)
		}
	}
	return nil
}

// Close releases the JavaScript context. Safe to call multiple times.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.vm.Close()
}
