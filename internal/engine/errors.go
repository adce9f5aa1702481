package engine

import (
	"errors"
	"fmt"

	"github.com/classync/classync/internal/classroom"
	"github.com/classync/classync/internal/identity"
)

// Sentinel errors for the engine's failure taxonomy. All of them surface
// as task failures; none abort the batch.
var (
	// ErrCourseNotMapped means a topic/work/roster event arrived before its
	// course was synced. FIFO ordering normally prevents this; when it
	// happens the event was delivered out of causal order.
	ErrCourseNotMapped = errors.New("course mapping not found")

	// ErrProtectedAccount means a remove was attempted against a protected
	// email. The task fails and the mapping is left untouched.
	ErrProtectedAccount = errors.New("account is protected from unenroll")

	// ErrUnknownEventType means the task's event type is not a member of
	// the closed event set.
	ErrUnknownEventType = errors.New("unknown event type")
)

// classifyError labels an error for the task failure details.
func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrCourseNotMapped):
		return "dependency_missing"
	case errors.Is(err, ErrProtectedAccount):
		return "protection_violation"
	case errors.Is(err, ErrUnknownEventType):
		return "unknown_event_type"
	case errors.Is(err, identity.ErrUnresolved):
		return "identity_unresolvable"
	}
	var invalid *PayloadError
	if errors.As(err, &invalid) {
		return "invalid_payload"
	}
	if apiMessage(err) != "" {
		return "remote_api_error"
	}
	return "sync_error"
}

// PayloadError wraps a schema validation failure.
type PayloadError struct {
	EventType string
	Err       error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.EventType, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// apiMessage returns the remote error message when err is an API error,
// or "" otherwise.
func apiMessage(err error) string {
	var apiErr *classroom.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// apiStatusCode returns the remote HTTP status when err is an API error.
func apiStatusCode(err error) int {
	var apiErr *classroom.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
