// errors.go defines the error taxonomy of the backend session client.
package opencode

import (
	"errors"
	"fmt"
)

// Environment errors: fatal, actionable, never retried.
var (
	ErrBackendNotInstalled = errors.New("opencode not found in PATH; install it from https://opencode.ai")
	ErrNotAuthenticated    = errors.New("opencode is not authenticated; run: opencode auth login")
	ErrBackendUnreachable  = errors.New("opencode backend unreachable")
)

// Transport, protocol and timeout errors.
var (
	ErrSubscribe             = errors.New("subscribing to event stream failed")
	ErrStreamDisconnected    = errors.New("stream disconnected, reconnect failed")
	ErrTimeout               = errors.New("operation timed out")
	ErrPromptSubmit          = errors.New("submitting prompt failed")
	ErrEmptyResponse         = errors.New("backend returned an empty response")
	ErrIdleWithoutCompletion = errors.New("session went idle without a completed response")
)

// SessionError is a failure reported by the backend for a session, either via a
// session.error event or an error attached to a completed assistant message.
type SessionError struct {
	Name    string
	Message string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	switch {
	case e.Name != "" && e.Message != "":
		return fmt.Sprintf("session error %s: %s", e.Name, e.Message)
	case e.Message != "":
		return "session error: " + e.Message
	case e.Name != "":
		return "session error " + e.Name
	default:
		return "session error"
	}
}

// RunError is returned by the Orchestrator for any failure after the session
// was opened. It names the model so the user knows which backend configuration
// produced the failure.
type RunError struct {
	Model string
	Err   error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	model := e.Model
	if model == "" {
		model = "(backend default)"
	}
	return fmt.Sprintf("generation with model %s failed: %v", model, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}
