package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/queue"
	"narrator/internal/services"
)

func (m *Manager) handleTaskFailure(ctx context.Context, logger *slog.Logger, task *queue.WordTask, taskErr error) {
	details := services.Details(taskErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = "clip synthesis failed without error detail"
	}

	outcome, err := m.store.FailWordTask(ctx, task.ID, message)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist task failure", "word_task_persist_failed",
			logging.Error(err),
			logging.String("task_error", message),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}

	if !outcome.Exhausted {
		m.metrics.RecordWordTask(ctx, string(task.Category), "retry")
		logging.WarnWithContext(logger, "word task failed; will retry", "word_task_retry",
			logging.Error(taskErr),
			logging.String("error_kind", details.Kind),
			logging.Int("attempts", outcome.Task.Attempts),
			logging.Int("max_attempts", outcome.Task.MaxAttempts),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.String(logging.FieldImpact, "the task returns to pending for the next cycle"),
		)
		m.recordTask(outcome.Task, false)
		return
	}

	exhausted := &services.QueueExhaustedError{
		TaskID:    task.ID,
		OwnerID:   task.OwnerID,
		Attempts:  outcome.Task.Attempts,
		LastError: message,
	}
	m.setLastError(exhausted)
	m.metrics.RecordWordTask(ctx, string(task.Category), "exhausted")
	logging.ErrorWithContext(logger, "word task exhausted", "word_task_exhausted",
		logging.Error(exhausted),
		logging.Alert("word_task_exhausted"),
		logging.String("word", task.Word),
		logging.String("category", string(task.Category)),
		logging.String(logging.FieldErrorHint, services.Details(exhausted).Hint),
	)

	m.notifyExhausted(ctx, logger, task, exhausted)
	m.publishEvent(ctx, logger, events.Event{
		Kind:     events.KindWordExhausted,
		OwnerID:  task.OwnerID,
		Word:     task.Word,
		Category: string(task.Category),
		Attempts: exhausted.Attempts,
		Error:    message,
	})
	m.recordTask(outcome.Task, true)
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
