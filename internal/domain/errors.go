package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrMessageFinalized = errors.New("message content is final")
	ErrAlreadyStreaming = errors.New("session already has a streaming message")
	ErrBusy             = errors.New("another message is still streaming")
	ErrBlobNotFound     = errors.New("blob not found")

	ErrEmptyMessage    = errors.New("message text is empty")
	ErrNoActiveSession = errors.New("no active session")
)

// RemoteServiceError is a failure talking to the remote model: network,
// authentication, quota or a malformed response.
type RemoteServiceError struct {
	Op  string
	Err error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("remote service %s: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// PersistenceError is a failure reading or writing durable state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError marks input the boundary should drop silently.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
