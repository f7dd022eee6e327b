package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPassword is returned when the server rejects the login.
	// Unlike transport errors it cannot be retried away.
	ErrInvalidPassword = errors.New("rcon: server rejected the password")

	// ErrTimeout is returned when a read exceeds the response deadline.
	ErrTimeout = errors.New("rcon: read timed out")

	// ErrInvalidJSON is returned when a payload cannot be parsed or is
	// missing an expected field.
	ErrInvalidJSON = errors.New("rcon: invalid json payload")

	// ErrNotImplemented is returned for commands the v2 surface does not
	// support yet.
	ErrNotImplemented = errors.New("rcon: command not implemented")
)

// InvalidDataError reports an unexpected frame shape.
type InvalidDataError struct {
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("rcon: invalid data: %s", e.Reason)
}

// FailureError reports a non-200 status code for a semantically expected
// reason. The session remains usable.
type FailureError struct {
	Code    int
	Message string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("rcon: server returned status %d: %s", e.Code, e.Message)
}
