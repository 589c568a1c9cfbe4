package queue

import (
	"database/sql"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const wordTaskColumns = "id, owner_id, word, category, status, attempts, max_attempts, created_at, updated_at, last_heartbeat, last_error"

const wordAudioColumns = "owner_id, category, word, audio_generated, audio_file, failed, attempts, last_error, updated_at"

const sessionColumns = "id, owner_id, state, total_segments, text_length, original_text, artifact_file, last_error, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWordTask(scanner rowScanner) (*WordTask, error) {
	var (
		task             WordTask
		category         string
		status           string
		createdRaw       string
		updatedRaw       string
		lastHeartbeatRaw sql.NullString
		lastError        sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Word,
		&category,
		&status,
		&task.Attempts,
		&task.MaxAttempts,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
		&lastError,
	); err != nil {
		return nil, err
	}
	task.Category = Category(category)
	task.Status = Status(status)
	task.LastError = lastError.String
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	return &task, nil
}

func scanWordAudio(scanner rowScanner) (*WordAudio, error) {
	var (
		record     WordAudio
		category   string
		generated  int
		failed     int
		audioFile  sql.NullString
		lastError  sql.NullString
		updatedRaw string
	)
	if err := scanner.Scan(
		&record.OwnerID,
		&category,
		&record.Word,
		&generated,
		&audioFile,
		&failed,
		&record.Attempts,
		&lastError,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	record.Category = Category(category)
	record.AudioGenerated = generated != 0
	record.Failed = failed != 0
	record.AudioFile = audioFile.String
	record.LastError = lastError.String
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return &record, nil
}

func scanSession(scanner rowScanner) (*Session, error) {
	var (
		record       Session
		state        string
		originalText sql.NullString
		artifactFile sql.NullString
		lastError    sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&record.ID,
		&record.OwnerID,
		&state,
		&record.TotalSegments,
		&record.TextLength,
		&originalText,
		&artifactFile,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	record.State = SessionState(state)
	record.OriginalText = originalText.String
	record.ArtifactFile = artifactFile.String
	record.LastError = lastError.String
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return &record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func now() string {
	return formatTime(time.Now())
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
