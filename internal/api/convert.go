package api

import (
	"sort"
	"time"

	"narrator/internal/queue"
	"narrator/internal/workflow"
)

// FromWordTask converts a queue task into its API representation.
func FromWordTask(task *queue.WordTask) WordTask {
	if task == nil {
		return WordTask{}
	}
	dto := WordTask{
		ID:          task.ID,
		OwnerID:     task.OwnerID,
		Word:        task.Word,
		Category:    string(task.Category),
		Status:      string(task.Status),
		Attempts:    task.Attempts,
		MaxAttempts: task.MaxAttempts,
		LastError:   task.LastError,
		CreatedAt:   formatTime(task.CreatedAt),
		UpdatedAt:   formatTime(task.UpdatedAt),
	}
	if task.LastHeartbeat != nil {
		dto.LastHeartbeat = formatTime(*task.LastHeartbeat)
	}
	return dto
}

// FromWordTasks converts a task listing, preserving order.
func FromWordTasks(tasks []*queue.WordTask) []WordTask {
	out := make([]WordTask, 0, len(tasks))
	for _, task := range tasks {
		if task == nil {
			continue
		}
		out = append(out, FromWordTask(task))
	}
	return out
}

// FromWordAudio converts owner clip records.
func FromWordAudio(records []*queue.WordAudio) []WordAudio {
	out := make([]WordAudio, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		out = append(out, WordAudio{
			OwnerID:        r.OwnerID,
			Category:       string(r.Category),
			Word:           r.Word,
			AudioGenerated: r.AudioGenerated,
			AudioFile:      r.AudioFile,
			Failed:         r.Failed,
			Attempts:       r.Attempts,
			LastError:      r.LastError,
			UpdatedAt:      formatTime(r.UpdatedAt),
		})
	}
	return out
}

// FromStatusSummary converts the workflow summary.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	out := WorkflowStatus{
		Running:    summary.Running,
		QueueStats: FromQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
		Processed:  summary.Processed,
		Exhausted:  summary.Exhausted,
	}
	if summary.LastTask != nil {
		task := FromWordTask(summary.LastTask)
		out.LastTask = &task
	}
	return out
}

// FromQueueStats keys task counts by status name.
func FromQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// SortedStats returns queue stats ordered by status name for stable output.
func SortedStats(stats map[string]int) []string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
