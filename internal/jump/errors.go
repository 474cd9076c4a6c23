package jump

import (
	"errors"
	"fmt"

	"github.com/timvw/jump-ssh/internal/expect"
)

// Kind classifies a session failure.
type Kind string

const (
	// LoginFailed: neither a password prompt nor the menu appeared, the
	// password was rejected, or the transport could not be opened.
	LoginFailed Kind = "LoginFailed"
	// NotFound: the search keyword returned to the main menu.
	NotFound Kind = "NotFound"
	// SelectionFailed: no shell prompt after picking from a host list.
	SelectionFailed Kind = "SelectionFailed"
	// SearchTimeout: the search did not reach a shell prompt in time.
	SearchTimeout Kind = "SearchTimeout"
	// CommandTimeout: the completion marker did not appear in time.
	CommandTimeout Kind = "CommandTimeout"
	// ConnectionClosed: the remote end closed the stream during a wait.
	ConnectionClosed Kind = "ConnectionClosed"
)

// Error is the failure returned by every Session and Runner operation.
type Error struct {
	Kind    Kind
	Message string
	// State is the navigation state the session was in when it failed.
	State State
	// Buffer is the unmatched terminal text, with secrets masked.
	Buffer string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" if err is not a session
// failure.
func KindOf(err error) Kind {
	var je *Error
	if errors.As(err, &je) {
		return je.Kind
	}
	return ""
}

// BufferOf returns the diagnostic buffer carried by err, if any.
func BufferOf(err error) string {
	var je *Error
	if errors.As(err, &je) {
		return je.Buffer
	}
	return ""
}

// unmatched extracts the buffer carried by an expect failure.
func unmatched(err error) string {
	var te *expect.TimeoutError
	if errors.As(err, &te) {
		return te.Buffer
	}
	var ce *expect.ClosedError
	if errors.As(err, &ce) {
		return ce.Buffer
	}
	return ""
}

func isTimeout(err error) bool {
	var te *expect.TimeoutError
	return errors.As(err, &te)
}
