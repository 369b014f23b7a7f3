package guest

import (
	"fmt"
)

// TypeError occurs when a typed accessor is used on a value of another kind.
// It is the only recoverable error of the guest core; protocol violations
// panic with a *ContractError.
type TypeError struct {
	Want Kind
	Got  Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("invalid type: want %s, got %s", e.Want, e.Got)
}

// ContractError describes a broken guest/host contract. It is only ever
// used as a panic value.
type ContractError struct {
	Op     string
	Detail string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("guest contract violated in %s: %s", e.Op, e.Detail)
}

func violation(op, format string, args ...any) {
	panic(&ContractError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
