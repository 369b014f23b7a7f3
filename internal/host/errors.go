package host

import "fmt"

// ParamError occurs when the encoded parameter list of an invocation is
// malformed.
type ParamError struct {
	Offset int
	Reason string
	Err    error
}

func (e *ParamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid parameter at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid parameter at offset %d: %s", e.Offset, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

// PackError occurs when a script result cannot be converted to a packed word.
type PackError struct {
	Type  string
	Value string
	Err   error
}

func (e *PackError) Error() string {
	return fmt.Sprintf("cannot pack %s result %q: %v", e.Type, e.Value, e.Err)
}

func (e *PackError) Unwrap() error {
	return e.Err
}

// DispatchError occurs when delivering an event to the guest fails.
type DispatchError struct {
	Kind string
	ID   uint32
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of %s event %d failed: %v", e.Kind, e.ID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// EventLimitError occurs when the event loop exceeds its event budget.
type EventLimitError struct {
	Max int
}

func (e *EventLimitError) Error() string {
	return fmt.Sprintf("event loop exceeded %d events", e.Max)
}
