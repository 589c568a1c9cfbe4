package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"

	openai "github.com/openai/openai-go"

	"narrator/internal/services"
)

// Request describes one synthesis call.
type Request struct {
	Text   string
	Voice  string
	Format string
}

// Synthesizer turns text into an audio byte stream. Callers must close the
// returned reader.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Func adapts a function to the Synthesizer interface.
type Func func(ctx context.Context, req Request) (io.ReadCloser, error)

// Synthesize calls f.
func (f Func) Synthesize(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// rejectedStatus lists HTTP statuses that mean the request itself is bad and
// repeating it cannot succeed.
var rejectedStatus = map[int]struct{}{
	http.StatusBadRequest:            {},
	http.StatusUnauthorized:          {},
	http.StatusForbidden:             {},
	http.StatusNotFound:              {},
	http.StatusRequestEntityTooLarge: {},
	http.StatusUnprocessableEntity:   {},
}

// StatusError reports a non-success HTTP status from the endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("speech endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("speech endpoint returned status %d: %s", e.StatusCode, e.Message)
}

// Classify tags err with the services marker that decides its retry policy:
// ErrClientRejected for rejected requests, ErrTransient for timeouts and
// connection failures. Anything else is returned with tts context only.
func Classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrClientRejected) || errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrEmptyResult) {
		return err
	}

	var status *StatusError
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		status = &StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	case errors.As(err, &status):
	}
	if status != nil {
		if _, ok := rejectedStatus[status.StatusCode]; ok {
			return services.Wrap(services.ErrClientRejected, "tts", operation, "request rejected", status)
		}
		return fmt.Errorf("tts: %s: %w", operation, status)
	}

	if isConnectionFailure(err) {
		return services.Wrap(services.ErrTransient, "tts", operation, "network failure", err)
	}
	return fmt.Errorf("tts: %s: %w", operation, err)
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
