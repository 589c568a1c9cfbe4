package services_test

import (
	"context"
	"testing"

	"narrator/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithTaskID(ctx, "task-7")
	ctx = services.WithOwnerID(ctx, "owner-3")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if id, ok := services.TaskIDFromContext(ctx); !ok || id != "task-7" {
		t.Fatalf("unexpected task id: %v %v", id, ok)
	}
	if id, ok := services.OwnerIDFromContext(ctx); !ok || id != "owner-3" {
		t.Fatalf("unexpected owner id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuePreservesContext(t *testing.T) {
	ctx := services.WithSessionID(context.Background(), "")
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session value")
	}
}
