package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidSeed is returned when an initial page contains duplicate or empty message ids.
var ErrInvalidSeed = errors.New("invalid seed: duplicate or empty message id")

// TransportError is a network or HTTP level failure.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	if e.Err == nil {
		return e.Op + ": transport error"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the remote side answered with something we cannot interpret.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// SeedError aborts a session before it starts running.
type SeedError struct {
	Cause error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed conversation: %v", e.Cause)
}

func (e *SeedError) Unwrap() error { return e.Cause }

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
