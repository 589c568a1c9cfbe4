package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrTransient marks timeouts and connection failures that are retried
	// with exponential back-off.
	ErrTransient = errors.New("transient network failure")
	// ErrEmptyResult marks a zero-byte synthesis response. It is retried like
	// a generic failure.
	ErrEmptyResult = errors.New("empty synthesis result")
	// ErrClientRejected marks a request the remote endpoint refused outright
	// (malformed input, auth failure, payload too large). It is never retried.
	ErrClientRejected = errors.New("client request rejected")
	// ErrMissingSegments marks a merge attempted before every segment exists.
	ErrMissingSegments = errors.New("missing segments")
	// ErrQueueExhausted marks a word task that used up its attempts.
	ErrQueueExhausted = errors.New("queue task exhausted")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// MissingSegmentError reports the indices a merge could not find. Errors
// holds the last synthesis failure recorded for a missing index, when known.
type MissingSegmentError struct {
	SessionID string
	Missing   []int
	Errors    map[int]string
}

func (e *MissingSegmentError) Error() string {
	indices := make([]string, len(e.Missing))
	for i, idx := range e.Missing {
		indices[i] = strconv.Itoa(idx)
	}
	if e.SessionID == "" {
		return fmt.Sprintf("missing segments: [%s]", strings.Join(indices, ", "))
	}
	return fmt.Sprintf("session %s missing segments: [%s]", e.SessionID, strings.Join(indices, ", "))
}

func (e *MissingSegmentError) Is(target error) bool { return target == ErrMissingSegments }

// SegmentError aggregates the outcome of a retried synthesis call.
// Index is -1 for standalone clips.
type SegmentError struct {
	Index    int
	Attempts int
	Last     error
}

func (e *SegmentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("clip failed after %d attempts, last error: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("segment %d failed after %d attempts, last error: %v", e.Index, e.Attempts, e.Last)
}

func (e *SegmentError) Unwrap() error { return e.Last }

// QueueExhaustedError is raised when a word task reaches its attempt ceiling.
type QueueExhaustedError struct {
	TaskID    string
	OwnerID   string
	Attempts  int
	LastError string
}

func (e *QueueExhaustedError) Error() string {
	return fmt.Sprintf("task %s for owner %s exhausted after %d attempts: %s", e.TaskID, e.OwnerID, e.Attempts, e.LastError)
}

func (e *QueueExhaustedError) Is(target error) bool { return target == ErrQueueExhausted }

// IsRetryable reports whether a synthesis failure may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrClientRejected),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration):
		return false
	default:
		return true
	}
}

// ErrorDetails is the operator-facing summary of an error.
type ErrorDetails struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Details classifies err for logs and API responses.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "internal", Message: err.Error()}
	switch {
	case errors.Is(err, ErrMissingSegments):
		details.Kind = "missing_segments"
		details.Hint = "regenerate the missing segments and merge again"
	case errors.Is(err, ErrClientRejected):
		details.Kind = "client_rejected"
		details.Hint = "check tts.api_key, voice, and input length"
	case errors.Is(err, ErrEmptyResult):
		details.Kind = "empty_result"
		details.Hint = "the speech endpoint returned no audio; retry later"
	case errors.Is(err, ErrQueueExhausted):
		details.Kind = "queue_exhausted"
		details.Hint = "re-enqueue the word once the endpoint is healthy"
	case errors.Is(err, ErrTimeout):
		details.Kind = "timeout"
		details.Hint = "increase tts.read_timeout_seconds or check network"
	case errors.Is(err, ErrTransient):
		details.Kind = "transient"
		details.Hint = "check network connectivity to tts.base_url"
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
		details.Hint = "run 'narrator config validate'"
	case errors.Is(err, ErrNotFound):
		details.Kind = "not_found"
	}
	return details
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingSegments):
		return http.StatusConflict
	case errors.Is(err, ErrClientRejected), errors.Is(err, ErrTransient), errors.Is(err, ErrEmptyResult):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
