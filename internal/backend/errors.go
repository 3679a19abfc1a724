package backend

import (
	"errors"
	"fmt"
)

// GenericRemoteMessage is reported when an error response carries no message.
const GenericRemoteMessage = "error communicating with Claude"

var (
	// ErrMalformedResponse is returned when a successful response has no text block.
	ErrMalformedResponse = errors.New("malformed response from Anthropic")

	// ErrTimeout is returned when the request deadline passes before a response arrives.
	ErrTimeout = errors.New("request to Anthropic timed out")
)

// RemoteServiceError is a non-success response from the API.
type RemoteServiceError struct {
	StatusCode int
	Message    string
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
}

// NetworkError wraps a failure to reach the API at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to reach Anthropic: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
