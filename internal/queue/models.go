package queue

import (
	"fmt"
	"strings"
	"time"

	"narrator/internal/services"
)

// Status represents the lifecycle of a word task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExhausted  Status = "exhausted"
)

// DaemonStopReason is recorded when a claimed task is released during shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusExhausted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input to a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether the status ends the task's life. Terminal tasks
// have no row.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExhausted
}

// Category is the closed set of word clip categories.
type Category string

const (
	CategoryListening Category = "listening"
	CategorySpeaking  Category = "speaking"
	CategoryReading   Category = "reading"
	CategoryWriting   Category = "writing"
)

var allCategories = []Category{CategoryListening, CategorySpeaking, CategoryReading, CategoryWriting}

// Categories returns every known category.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory validates a category name.
func ParseCategory(value string) (Category, error) {
	candidate := Category(strings.ToLower(strings.TrimSpace(value)))
	for _, c := range allCategories {
		if c == candidate {
			return c, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "queue", "parse category",
		fmt.Sprintf("unknown category %q (expected listening, speaking, reading or writing)", value), nil)
}

// WordTask is one non-terminal word clip task.
type WordTask struct {
	ID            string
	OwnerID       string
	Word          string
	Category      Category
	Status        Status
	Attempts      int
	MaxAttempts   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
	LastError     string
}

// WordTaskInput describes a task to enqueue.
type WordTaskInput struct {
	OwnerID     string
	Word        string
	Category    Category
	MaxAttempts int
}

// FailOutcome reports what FailWordTask did with the task.
type FailOutcome struct {
	Task      *WordTask
	Exhausted bool
}

// CompleteOutcome reports what CompleteWordTask did with the task.
// Superseded means a newer word arrived while the task was processing; the
// task went back to Pending carrying Word and the owner record was left
// unready.
type CompleteOutcome struct {
	Superseded bool
	Word       string
}

// WordAudio is the owner-side record read back by callers: whether the clip
// is ready and, after exhaustion, the persistent failure marker.
type WordAudio struct {
	OwnerID        string
	Category       Category
	Word           string
	AudioGenerated bool
	AudioFile      string
	Failed         bool
	Attempts       int
	LastError      string
	UpdatedAt      time.Time
}

// SessionState is the lifecycle of a long-text session record.
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionMerged SessionState = "merged"
)

// Session is the durable metadata of a long-text session. Segment progress
// lives in the segment directory, not here.
type Session struct {
	ID            string
	OwnerID       string
	State         SessionState
	TotalSegments int
	TextLength    int
	OriginalText  string
	ArtifactFile  string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// HealthSummary describes aggregated task counts.
type HealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sessions   int `json:"activeSessions"`
	Exhausted  int `json:"exhaustedOwners"`
}
