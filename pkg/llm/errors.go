package llm

import (
	"errors"
	"fmt"
)

// FallbackMessage is shown in place of a reply when the endpoint cannot be reached
const FallbackMessage = "Sorry, I seem to have experienced an error"

var (
	ErrUnavailable       = errors.New("chat completion service unavailable")
	ErrMalformedResponse = errors.New("malformed chat completion response")
	ErrEmptyHistory      = errors.New("no messages to send")
	ErrInvalidRole       = errors.New("invalid message role")
)

// UnavailableError is returned once every attempt has failed
type UnavailableError struct {
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrUnavailable, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// RemoteError carries an error payload sent by the endpoint mid-stream
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "endpoint error: " + e.Message
}
