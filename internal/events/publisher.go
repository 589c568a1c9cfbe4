package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"narrator/internal/config"
	"narrator/internal/logging"
)

// Kind identifies an event subject suffix.
type Kind string

const (
	KindWordCompleted Kind = "word.completed"
	KindWordExhausted Kind = "word.exhausted"
	KindSessionMerged Kind = "session.merged"
)

// Event is the JSON body published for every kind.
type Event struct {
	Kind       Kind      `json:"kind"`
	OwnerID    string    `json:"ownerId"`
	SessionID  string    `json:"sessionId,omitempty"`
	Word       string    `json:"word,omitempty"`
	Category   string    `json:"category,omitempty"`
	AudioFile  string    `json:"audioFile,omitempty"`
	Artifact   string    `json:"artifactUrl,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits pipeline events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Connect returns a NATS-backed publisher, or a no-op when events are disabled.
func Connect(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	url := strings.TrimSpace(cfg.Events.NATSURL)
	if url == "" {
		return Nop(), nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	name := cfg.Events.ClientName
	if name == "" {
		name = "narrator"
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("connected to NATS",
		logging.String("servers", url),
		logging.String(logging.FieldEventType, "events_connected"),
	)

	prefix := strings.Trim(cfg.Events.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "narrator"
	}
	return &natsPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// Subject returns the NATS subject for kind under prefix.
func Subject(prefix string, kind Kind) string {
	return strings.Trim(prefix, ".") + "." + string(kind)
}

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

func (p *natsPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := Subject(p.prefix, event.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published",
		logging.String("subject", subject),
		logging.String(logging.FieldOwnerID, event.OwnerID),
	)
	return nil
}

func (p *natsPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
	p.conn.Close()
}

type nopPublisher struct{}

// Nop returns a publisher that discards events.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close()                               {}
