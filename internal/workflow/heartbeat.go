package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"narrator/internal/logging"
	"narrator/internal/queue"
)

// HeartbeatMonitor keeps claimed tasks alive and returns abandoned ones to
// the queue.
type HeartbeatMonitor struct {
	store      *queue.Store
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

// NewHeartbeatMonitor builds a monitor. A non-positive interval disables
// heartbeats and a non-positive staleAfter disables reclamation.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, staleAfter time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "workflow-heartbeat"),
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// ReclaimStale moves Processing tasks whose last heartbeat predates the
// staleness window back to Pending.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	if h.staleAfter <= 0 {
		return 0, nil
	}
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, time.Now().Add(-h.staleAfter))
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale tasks",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "stale_tasks_reclaimed"),
		)
	}
	return reclaimed, nil
}

// Beat refreshes taskID's heartbeat every interval until the returned stop
// function is called. stop blocks until the beating goroutine has exited.
func (h *HeartbeatMonitor) Beat(ctx context.Context, taskID string) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	logger := logging.WithContext(ctx, h.logger)

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := h.store.UpdateHeartbeat(ctx, taskID)
				switch {
				case err == nil:
				case errors.Is(err, context.Canceled):
					logger.Debug("heartbeat update cancelled")
				default:
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
