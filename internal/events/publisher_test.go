package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"narrator/internal/events"
	"narrator/internal/testsupport"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server did not become ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestConnectWithoutURLReturnsNop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pub, err := events.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pub.Close()
	if err := pub.Publish(context.Background(), events.Event{Kind: events.KindWordCompleted}); err != nil {
		t.Fatalf("nop publish returned %v", err)
	}
}

func TestPublishDeliversJSONOnSubject(t *testing.T) {
	ns := startServer(t)

	cfg := testsupport.NewConfig(t)
	cfg.Events.NATSURL = ns.ClientURL()
	cfg.Events.SubjectPrefix = "narrator.test."

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	if _, err := sub.ChanSubscribe("narrator.test.word.completed", msgs); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	pub, err := events.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pub.Close()

	if err := pub.Publish(context.Background(), events.Event{
		Kind:      events.KindWordCompleted,
		OwnerID:   "vocab-7",
		Word:      "apple",
		Category:  "reading",
		AudioFile: "reading/vocab-7.mp3",
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		var got events.Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.OwnerID != "vocab-7" || got.Word != "apple" || got.Kind != events.KindWordCompleted {
			t.Fatalf("unexpected event: %+v", got)
		}
		if got.OccurredAt.IsZero() {
			t.Fatal("expected occurredAt to be stamped")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	ns := startServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Events.NATSURL = ns.ClientURL()

	pub, err := events.Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, events.Event{Kind: events.KindSessionMerged}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSubjectTrimsDots(t *testing.T) {
	if got := events.Subject(".narrator.", events.KindSessionMerged); got != "narrator.session.merged" {
		t.Fatalf("Subject = %q", got)
	}
}
