package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"narrator/internal/config"
)

const userAgent = "Narrator-Go/0.1.0"

// Event names a notification type.
type Event string

const (
	// EventSessionMerged fires when a long-text session becomes one artifact.
	EventSessionMerged Event = "session_merged"
	// EventWordExhausted fires when a word task uses up its attempts.
	EventWordExhausted Event = "word_exhausted"
	EventError         Event = "error"
	EventTest          Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		sessionMerged:   cfg.Notifications.SessionMerged,
		wordExhausted:   cfg.Notifications.WordExhausted,
		errors:          cfg.Notifications.Errors,
		minMergeSeconds: cfg.Notifications.MinMergeSeconds,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	sessionMerged   bool
	wordExhausted   bool
	errors          bool
	minMergeSeconds int
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventSessionMerged:
		if !n.sessionMerged {
			return message{}, false
		}
		if n.minMergeSeconds > 0 && payloadInt(payload, "elapsedSeconds") < n.minMergeSeconds {
			return message{}, false
		}
		body := fmt.Sprintf("🎧 Narration ready: %s", payloadString(payload, "filename"))
		if segments := payloadInt(payload, "segments"); segments > 0 {
			body = fmt.Sprintf("%s (%d segments)", body, segments)
		}
		return message{
			title: "Narrator - Session Merged",
			body:  body,
			tags:  []string{"narrator", "session", "merged"},
		}, true
	case EventWordExhausted:
		if !n.wordExhausted {
			return message{}, false
		}
		return message{
			title: "Narrator - Word Audio Failed",
			body: fmt.Sprintf("Word %q (%s, owner %s) failed after %d attempts: %s",
				payloadString(payload, "word"),
				payloadString(payload, "category"),
				payloadString(payload, "ownerId"),
				payloadInt(payload, "attempts"),
				payloadString(payload, "error"),
			),
			tags:     []string{"narrator", "word", "exhausted"},
			priority: "high",
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := payloadString(payload, "error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Narrator - Error",
			body:     builder.String(),
			tags:     []string{"narrator", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Narrator - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"narrator", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func payloadInt(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
