package workflow

import (
	"context"
	"errors"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/observe"
	"narrator/internal/queue"
	"narrator/internal/services"
)

func (m *Manager) processTask(ctx context.Context, task *queue.WordTask) {
	taskCtx := services.WithTaskID(services.WithOwnerID(ctx, task.OwnerID), task.ID)
	taskCtx, span := observe.StartSpan(taskCtx, "workflow.word_task",
		trace.WithAttributes(
			attribute.String("narrator.task_id", task.ID),
			attribute.String("narrator.category", string(task.Category)),
		),
	)
	var spanErr error
	defer func() { observe.EndSpan(span, spanErr) }()

	logger := logging.WithContext(taskCtx, m.logger)
	start := time.Now()
	logger.Info("word task started",
		logging.String(logging.FieldEventType, "word_task_start"),
		logging.String("word", task.Word),
		logging.String("category", string(task.Category)),
		logging.Int(logging.FieldAttempt, task.Attempts+1),
	)

	path := m.ClipPath(task.OwnerID, task.Category)
	err := m.executeWithHeartbeat(taskCtx, task, path)
	if err != nil {
		spanErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("word task interrupted by shutdown", logging.String(logging.FieldEventType, "word_task_interrupted"))
			m.releaseUnstarted(ctx, []*queue.WordTask{task})
			return
		}
		m.handleTaskFailure(taskCtx, logger, task, err)
		return
	}

	rel := ClipRelPath(task.OwnerID, task.Category, m.clips.Extension())
	outcome, err := m.store.CompleteWordTask(taskCtx, task.ID, rel)
	if err != nil {
		spanErr = err
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist task completion", "word_task_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the clip exists; the stale sweep will retry completion"),
		)
		return
	}
	if outcome.Superseded {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove superseded clip", logging.Error(err))
		}
		m.metrics.RecordWordTask(taskCtx, string(task.Category), "superseded")
		logger.Info("word changed during synthesis; task requeued",
			logging.String(logging.FieldEventType, "word_task_superseded"),
			logging.String("word", outcome.Word),
		)
		return
	}

	m.metrics.RecordWordTask(taskCtx, string(task.Category), "completed")
	m.publishEvent(taskCtx, logger, events.Event{
		Kind:      events.KindWordCompleted,
		OwnerID:   task.OwnerID,
		Word:      task.Word,
		Category:  string(task.Category),
		AudioFile: rel,
		Attempts:  task.Attempts + 1,
	})
	logger.Info("word task completed",
		logging.String(logging.FieldEventType, "word_task_complete"),
		logging.String("audio_file", rel),
		logging.Duration("duration", time.Since(start)),
	)
	m.recordTask(task, false)
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, task *queue.WordTask, path string) error {
	stop := m.heartbeat.Beat(ctx, task.ID)
	defer stop()
	return m.clips.SynthesizeClip(ctx, task.Word, path)
}
