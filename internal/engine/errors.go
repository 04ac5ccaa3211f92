package engine

import "fmt"

// TransitionError reports an illegal transition request against the current
// execution state. It is rejected synchronously: the state is unchanged and
// nothing is logged.
type TransitionError struct {
	Op     string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s: %s", e.Op, e.Reason)
}

func transitionErr(op, format string, args ...any) error {
	return &TransitionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
