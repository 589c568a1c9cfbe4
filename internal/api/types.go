package api

import (
	"narrator/internal/pipeline"
	"narrator/internal/preflight"
	"narrator/internal/queue"
	"narrator/internal/session"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitSessionRequest starts a server-driven session.
type SubmitSessionRequest struct {
	OwnerID string `json:"ownerId"`
	Text    string `json:"text"`
}

// PrepareSessionRequest asks for a dry-run segmentation.
type PrepareSessionRequest struct {
	Text string `json:"text"`
}

// GenerateSegmentRequest synthesizes one client-driven segment.
type GenerateSegmentRequest struct {
	OwnerID string `json:"ownerId"`
	Index   int    `json:"index"`
	Text    string `json:"text"`
}

// MergeSessionRequest merges a finished session.
type MergeSessionRequest struct {
	TotalSegments int    `json:"totalSegments"`
	OriginalText  string `json:"originalText"`
	Kind          string `json:"kind,omitempty"`
}

// ResumeSessionResponse lists the re-dispatched segment indices.
type ResumeSessionResponse struct {
	Dispatched []int `json:"dispatched"`
}

// UnfinishedResponse lists an owner's partially synthesized sessions.
type UnfinishedResponse struct {
	Sessions []session.Unfinished `json:"sessions"`
}

// SubmitWordRequest records a word clip request.
type SubmitWordRequest struct {
	OwnerID  string `json:"ownerId"`
	Word     string `json:"word"`
	Category string `json:"category"`
}

// AcceptedResponse acknowledges an asynchronous request.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// RequeueWordRequest re-enqueues an owner's clip in one category.
type RequeueWordRequest struct {
	Category string `json:"category"`
}

// WordTask describes a queued word clip task in a transport-friendly format.
type WordTask struct {
	ID            string `json:"id"`
	OwnerID       string `json:"ownerId"`
	Word          string `json:"word"`
	Category      string `json:"category"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	MaxAttempts   int    `json:"maxAttempts"`
	LastError     string `json:"lastError,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
	LastHeartbeat string `json:"lastHeartbeat,omitempty"`
}

// WordAudio is the owner-side clip record.
type WordAudio struct {
	OwnerID        string `json:"ownerId"`
	Category       string `json:"category"`
	Word           string `json:"word"`
	AudioGenerated bool   `json:"audioGenerated"`
	AudioFile      string `json:"audioFile,omitempty"`
	Failed         bool   `json:"failed"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"lastError,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// WordAudioResponse wraps an owner's clip records.
type WordAudioResponse struct {
	Records []WordAudio `json:"records"`
}

// RequeueWordResponse returns the freshly created task.
type RequeueWordResponse struct {
	Task WordTask `json:"task"`
}

// QueueListResponse wraps queue listings.
type QueueListResponse struct {
	Tasks []WordTask `json:"tasks"`
}

// ReclaimResponse reports how many stale tasks were returned to pending.
type ReclaimResponse struct {
	Reclaimed int64 `json:"reclaimed"`
}

// NotificationTestResponse reports the outcome of a test notification.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// WorkflowStatus summarizes the word queue processor.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	QueueStats map[string]int `json:"queueStats"`
	LastError  string         `json:"lastError,omitempty"`
	LastTask   *WordTask      `json:"lastTask,omitempty"`
	Processed  int            `json:"processed"`
	Exhausted  int            `json:"exhausted"`
}

// DaemonStatus is returned by GET /api/status.
type DaemonStatus struct {
	Running      bool                `json:"running"`
	PID          int                 `json:"pid"`
	QueueDBPath  string              `json:"queueDbPath"`
	LockFilePath string              `json:"lockFilePath"`
	Workflow     WorkflowStatus      `json:"workflow"`
	Pipeline     pipeline.Status     `json:"pipeline"`
	Health       queue.HealthSummary `json:"health"`
	Preflight    []preflight.Result  `json:"preflight"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Missing []int  `json:"missing,omitempty"`
	// SegmentErrors maps a missing index to its last synthesis failure.
	SegmentErrors map[int]string `json:"segmentErrors,omitempty"`
}
