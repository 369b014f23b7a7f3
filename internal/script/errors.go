package script

import "fmt"

// ScriptError occurs when evaluating JavaScript in the engine fails.
type ScriptError struct {
	Source string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script '%s' failed: %v", e.Source, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// ResultError occurs when the engine returns a value the host cannot read.
type ResultError struct {
	Op     string
	Result any
	Err    error
}

func (e *ResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected result from %s (%v): %v", e.Op, e.Result, e.Err)
	}
	return fmt.Sprintf("unexpected result from %s: %T", e.Op, e.Result)
}

func (e *ResultError) Unwrap() error {
	return e.Err
}

// ClosedError occurs when an engine is used after Close.
type ClosedError struct{}

func (e *ClosedError) Error() string {
	return "script engine is closed"
}
