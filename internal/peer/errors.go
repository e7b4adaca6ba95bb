package peer

import (
	"errors"
	"fmt"
)

var (
	ErrSignalingClosed = errors.New("signaling connection closed")
	ErrTimeout         = errors.New("timeout")
	ErrNoPeers         = errors.New("no connected peers")
	ErrBadFrame        = errors.New("malformed data channel frame")
)

// OpError records the peer operation that failed.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
