package workflow

import (
	"context"

	"narrator/internal/logging"
	"narrator/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool                 `json:"running"`
	LastError  string               `json:"lastError,omitempty"`
	LastTask   *queue.WordTask      `json:"lastTask,omitempty"`
	Processed  int                  `json:"processed"`
	Exhausted  int                  `json:"exhausted"`
	QueueStats map[queue.Status]int `json:"queueStats"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		Processed: m.processed,
		Exhausted: m.exhausted,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastTask != nil {
		copy := *m.lastTask
		summary.LastTask = &copy
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) recordTask(task *queue.WordTask, exhausted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task != nil {
		copy := *task
		m.lastTask = &copy
	}
	m.processed++
	if exhausted {
		m.exhausted++
	}
}
