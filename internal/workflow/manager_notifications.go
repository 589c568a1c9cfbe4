package workflow

import (
	"context"
	"log/slog"

	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/queue"
	"narrator/internal/services"
)

func (m *Manager) notifyExhausted(ctx context.Context, logger *slog.Logger, task *queue.WordTask, exhausted *services.QueueExhaustedError) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, notifications.EventWordExhausted, notifications.Payload{
		"word":     task.Word,
		"category": string(task.Category),
		"ownerId":  task.OwnerID,
		"attempts": exhausted.Attempts,
		"error":    exhausted.LastError,
	}); err != nil {
		if isShutdown(err) {
			logger.Debug("daemon shutting down, could not send exhaustion notification")
		} else {
			logger.Debug("exhaustion notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) publishEvent(ctx context.Context, logger *slog.Logger, event events.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, event); err != nil {
		if isShutdown(err) {
			logger.Debug("daemon shutting down, could not publish event")
			return
		}
		logging.WarnWithContext(logger, "event publish failed", "event_publish_failed",
			logging.Error(err),
			logging.String("kind", string(event.Kind)),
			logging.String(logging.FieldErrorHint, "check events.nats_url"),
			logging.String(logging.FieldImpact, "subscribers miss this update; the owner record is still current"),
		)
	}
}
