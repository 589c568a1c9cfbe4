package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"narrator/internal/logging"
	"narrator/internal/queue"
)

const releaseTimeout = 5 * time.Second

// Start begins background processing. Tasks left Processing by a previous
// daemon are handed back to Pending first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.clips == nil {
		m.mu.Unlock()
		return errors.New("clip synthesizer not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.workCancel = workCancel
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckProcessing(ctx); err != nil {
		logging.WarnWithContext(m.logger, "reset of orphaned tasks failed", "orphan_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "orphaned tasks wait for the stale sweep"),
		)
	} else if reset > 0 {
		m.logger.Info("orphaned tasks returned to pending",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "orphan_reset"),
		)
	}

	go m.run(runCtx, workCtx, done)
	return nil
}

// Stop stops claiming new tasks and waits for the in-flight task. When the
// drain timeout passes, the in-flight task is cancelled and released.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	workCancel := m.workCancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.workCancel = nil
	m.mu.Unlock()

	cancel()
	defer workCancel()

	if m.drainTimeout <= 0 {
		workCancel()
		<-done
		return
	}
	timer := time.NewTimer(m.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.WarnWithContext(m.logger, "drain timeout reached; cancelling in-flight task", "drain_timeout",
			logging.Duration("drain_timeout", m.drainTimeout),
			logging.String(logging.FieldErrorHint, "raise synthesis.drain_timeout_seconds if clips are slow"),
			logging.String(logging.FieldImpact, "the in-flight task returns to pending"),
		)
		workCancel()
		<-done
	}
}

// Running reports whether the loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// RunOnce executes a single sweep, claim, and process cycle and returns the
// number of tasks processed.
func (m *Manager) RunOnce(ctx context.Context) (int, error) {
	return m.runCycle(ctx, ctx)
}

// ReclaimStale runs the stale-task sweep immediately.
func (m *Manager) ReclaimStale(ctx context.Context) (int64, error) {
	return m.heartbeat.ReclaimStale(ctx)
}

func (m *Manager) run(ctx, workCtx context.Context, done chan struct{}) {
	defer close(done)
	m.logger.Info("word queue started",
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("batch_size", m.cfg.WordQueue.BatchSize),
		logging.String(logging.FieldEventType, "word_queue_start"),
	)
	defer m.logger.Info("word queue stopped", logging.String(logging.FieldEventType, "word_queue_stop"))

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.runCycle(ctx, workCtx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleCycleError(err)
			if !m.wait(ctx, m.errorInterval) {
				return
			}
			continue
		}
		if !m.wait(ctx, m.pollInterval) {
			return
		}
	}
}

// runCycle claims with ctx and processes with workCtx so shutdown stops
// claiming while the in-flight task completes.
func (m *Manager) runCycle(ctx, workCtx context.Context) (int, error) {
	if _, err := m.heartbeat.ReclaimStale(ctx); err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}

	tasks, err := m.store.ClaimPending(ctx, m.cfg.WordQueue.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	m.logger.Debug("claimed word tasks", logging.Int("count", len(tasks)))

	processed := 0
	for i, task := range tasks {
		if i > 0 && !m.wait(ctx, m.taskSpacing) {
			m.releaseUnstarted(ctx, tasks[i:])
			return processed, nil
		}
		if ctx.Err() != nil {
			m.releaseUnstarted(ctx, tasks[i:])
			return processed, nil
		}
		m.processTask(workCtx, task)
		processed++
	}
	return processed, nil
}

func (m *Manager) releaseUnstarted(ctx context.Context, tasks []*queue.WordTask) {
	if len(tasks) == 0 {
		return
	}
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	released, err := m.store.ReleaseClaimed(releaseCtx, ids...)
	if err != nil {
		logging.WarnWithContext(m.logger, "failed to release claimed tasks", "task_release_failed",
			logging.Error(err),
			logging.Int("count", len(ids)),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "tasks return to pending after the stale sweep"),
		)
		return
	}
	m.logger.Info("released claimed tasks",
		logging.Int64("count", released),
		logging.String("reason", queue.DaemonStopReason),
		logging.String(logging.FieldEventType, "tasks_released"),
	)
}

func (m *Manager) handleCycleError(err error) {
	m.setLastError(err)
	logging.ErrorWithContext(m.logger, "word queue cycle failed", "word_queue_cycle_failed",
		logging.Error(err),
		logging.Duration("retry_in", m.errorInterval),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
}

func waitOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
