package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"narrator/internal/services"
	"narrator/internal/tts"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSynthesizeSendsRequestAndStreamsBody(t *testing.T) {
	var got map[string]any
	var auth string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-audio"))
	})

	client, err := tts.New("secret", tts.WithBaseURL(srv.URL+"/v1"), tts.WithVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	body, err := client.Synthesize(context.Background(), tts.Request{Text: "Hello world."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "ID3fake-audio" {
		t.Fatalf("unexpected body %q", data)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["model"] != "tts-1" || got["voice"] != "nova" || got["input"] != "Hello world." {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestClientRejectsClientErrorsWithoutRetry(t *testing.T) {
	calls := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})
	client, err := tts.New("secret", tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Synthesize(context.Background(), tts.Request{Text: "Hi."})
	if !errors.Is(err, services.ErrClientRejected) {
		t.Fatalf("expected client rejected, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestClientServerErrorIsGeneric(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client, err := tts.New("secret", tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Synthesize(context.Background(), tts.Request{Text: "Hi."})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, services.ErrClientRejected) || errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected generic failure, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatalf("expected 503 to be retryable, got %v", err)
	}
}

func TestClientReadTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	})
	defer close(release)

	client, err := tts.New("secret", tts.WithBaseURL(srv.URL), tts.WithTimeouts(time.Second, 100*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Synthesize(context.Background(), tts.Request{Text: "Hi."})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestClientConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := tts.New("secret", tts.WithBaseURL(url), tts.WithTimeouts(time.Second, time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Synthesize(context.Background(), tts.Request{Text: "Hi."})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := tts.New(" "); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEmptyTextIsRejected(t *testing.T) {
	client, err := tts.New("secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Synthesize(context.Background(), tts.Request{Text: "  "}); !errors.Is(err, services.ErrClientRejected) {
		t.Fatalf("expected client rejected, got %v", err)
	}
}
