package engine

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrScriptNotFound means no script serves the requested path.
	ErrScriptNotFound = errors.New("script not found")
	// ErrTimeout means the watchdog aborted the script.
	ErrTimeout = errors.New("Script TimeOut")
	// ErrDisposed is returned by operations on a disposed context.
	ErrDisposed = errors.New("execution context disposed")
	// ErrResponseAborted means streaming failed after the status was sent.
	ErrResponseAborted = errors.New("response aborted")
)

// InitializationError is a failure to set up an execution context.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("engine initialization failed: %v", e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }

// ServerError is a script, compile or protocol failure. Message is shown
// to the caller; Cause is kept for the logs.
type ServerError struct {
	Message string
	Cause   error
}

func (e *ServerError) Error() string { return e.Message }

func (e *ServerError) Unwrap() error { return e.Cause }

// InternalMessage is the caller-facing text of failures whose cause may
// carry host details such as file paths.
const InternalMessage = "internal error"

// newServerError wraps cause behind InternalMessage.
func newServerError(cause error) *ServerError {
	return &ServerError{Message: InternalMessage, Cause: cause}
}

// StatusCode maps an engine error to the HTTP status of the failure
// response.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrScriptNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FailureBody returns the plain-text body of the failure response for err.
func FailureBody(err error) string {
	switch StatusCode(err) {
	case http.StatusServiceUnavailable:
		return "Script TimeOut"
	case http.StatusNotFound:
		return "404 Not Found"
	}
	var se *ServerError
	if errors.As(err, &se) {
		return "Server Error : " + se.Message
	}
	return "Server Error : " + InternalMessage
}
