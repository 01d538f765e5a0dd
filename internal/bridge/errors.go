package bridge

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned when a status action carries an action
// identifier the bridge does not recognize. Unknown actions are rejected
// rather than treated as a resolve.
var ErrUnknownAction = errors.New("bridge: unknown action identifier")

// ErrThreadNotFound is returned when a status change targets a session
// with no thread.
var ErrThreadNotFound = errors.New("bridge: thread not found")

// ValidationError reports a missing or malformed request field. It is
// raised before any side effect.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bridge: %s is required", e.Field)
}

// GatewayError wraps a failed external channel call.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("bridge: gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// MirrorError reports a partial failure: the authoritative store mutation
// committed, but the external channel mirror did not follow. Callers
// receive the committed result alongside this error and must distinguish
// it from a full failure.
type MirrorError struct {
	Op  string
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("bridge: mirror %s failed after commit: %v", e.Op, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }

// IsMirrorError reports whether err is (or wraps) a partial mirror failure.
func IsMirrorError(err error) bool {
	var me *MirrorError
	return errors.As(err, &me)
}
