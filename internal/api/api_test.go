package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"narrator/internal/queue"
	"narrator/internal/workflow"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req SubmitSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.OwnerID != "owner" || req.Text != "hello" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"sessionId":"abc","totalSegments":3}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	sub, err := client.SubmitSession(context.Background(), "owner", "hello")
	if err != nil {
		t.Fatalf("SubmitSession: %v", err)
	}
	if sub.SessionID != "abc" || sub.TotalSegments != 3 {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"session s missing segments: [1]","kind":"missing_segments","missing":[1]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.MergeSession(context.Background(), "s", MergeSessionRequest{TotalSegments: 2})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || !reflect.DeepEqual(apiErr.Body.Missing, []int{1}) {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClientQueryEncoding(t *testing.T) {
	var got []string
	var total string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/queue":
			got = r.URL.Query()["status"]
			_, _ = w.Write([]byte(`{"tasks":[]}`))
		case "/api/sessions/s 1/status":
			total = r.URL.Query().Get("total")
			_, _ = w.Write([]byte(`{"completed":[0],"missing":[],"totalSegments":1,"completionRate":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Queue(context.Background(), queue.StatusPending, queue.StatusFailed); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"pending", "failed"}) {
		t.Fatalf("status query = %v", got)
	}
	progress, err := client.SessionStatus(context.Background(), "s 1", 1)
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if total != "1" || !progress.Done() {
		t.Fatalf("unexpected status %q %+v", total, progress)
	}
}

func TestNewClientRequiresBind(t *testing.T) {
	if _, err := NewClient("  ", ""); !errors.Is(err, ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
	client, err := NewClient("127.0.0.1:7487", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.base.Scheme != "http" || client.base.Host != "127.0.0.1:7487" {
		t.Fatalf("unexpected base %s", client.base)
	}
}

func TestIsAPIUnavailable(t *testing.T) {
	client, err := NewClient("127.0.0.1:1", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Status(context.Background())
	if !IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if IsAPIUnavailable(&Error{StatusCode: 500}) {
		t.Fatal("HTTP errors are not connectivity failures")
	}
}

func TestFromStatusSummary(t *testing.T) {
	beat := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	summary := workflow.StatusSummary{
		Running:    true,
		Processed:  4,
		Exhausted:  1,
		QueueStats: map[queue.Status]int{queue.StatusPending: 2},
		LastTask: &queue.WordTask{
			ID:            "t1",
			OwnerID:       "o1",
			Word:          "kiwi",
			Category:      queue.CategoryReading,
			Status:        queue.StatusProcessing,
			LastHeartbeat: &beat,
		},
	}
	status := FromStatusSummary(summary)
	if !status.Running || status.Processed != 4 || status.QueueStats["pending"] != 2 {
		t.Fatalf("unexpected workflow status %+v", status)
	}
	if status.LastTask == nil || status.LastTask.Category != "reading" || status.LastTask.LastHeartbeat != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected last task %+v", status.LastTask)
	}
}

func TestFromWordAudioSkipsNil(t *testing.T) {
	records := FromWordAudio([]*queue.WordAudio{nil, {OwnerID: "o", Category: queue.CategoryWriting, Word: "w", Failed: true}})
	if len(records) != 1 || records[0].Category != "writing" || !records[0].Failed {
		t.Fatalf("unexpected records %+v", records)
	}
}
