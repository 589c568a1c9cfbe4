package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"narrator/internal/services"
)

// CreateSession records a new active session and its segment texts.
func (s *Store) CreateSession(ctx context.Context, record Session, segments []string) error {
	if strings.TrimSpace(record.ID) == "" {
		return services.Wrap(services.ErrValidation, "queue", "create session", "session id is required", nil)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stamp := now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, owner_id, state, total_segments, text_length, original_text, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.OwnerID, SessionActive, len(segments), record.TextLength,
			nullableString(record.OriginalText), stamp, stamp,
		); err != nil {
			return err
		}
		for idx, text := range segments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_segments (session_id, idx, text) VALUES (?, ?, ?)`,
				record.ID, idx, text,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// EnsureSession returns the session, creating an empty active record for
// client-driven sessions whose segments arrive one at a time.
func (s *Store) EnsureSession(ctx context.Context, id, ownerID string) (*Session, error) {
	stamp := now()
	if _, err := s.exec(ctx,
		`INSERT INTO sessions (id, owner_id, state, total_segments, text_length, created_at, updated_at)
         VALUES (?, ?, ?, 0, 0, ?, ?)
         ON CONFLICT (id) DO NOTHING`,
		id, ownerID, SessionActive, stamp, stamp,
	); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// PutSegmentText records or replaces the text of one segment.
func (s *Store) PutSegmentText(ctx context.Context, sessionID string, index int, text string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_segments (session_id, idx, text) VALUES (?, ?, ?)
             ON CONFLICT (session_id, idx) DO UPDATE SET text = excluded.text`,
			sessionID, index, text,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET total_segments = MAX(total_segments, ?), updated_at = ? WHERE id = ?`,
			index+1, now(), sessionID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("put segment text: %w", err)
	}
	return nil
}

// GetSession fetches a session by identifier. A missing session returns nil, nil.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	record, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// SegmentTexts returns the recorded text of each segment by index.
func (s *Store) SegmentTexts(ctx context.Context, sessionID string) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, text FROM session_segments WHERE session_id = ? ORDER BY idx`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("segment texts: %w", err)
	}
	defer rows.Close()

	texts := make(map[int]string)
	for rows.Next() {
		var (
			idx  int
			text string
		)
		if err := rows.Scan(&idx, &text); err != nil {
			return nil, err
		}
		texts[idx] = text
	}
	return texts, rows.Err()
}

// ListSessions returns sessions newest first, optionally filtered by owner
// (empty means all owners) and state.
func (s *Store) ListSessions(ctx context.Context, ownerID string, states ...SessionState) ([]*Session, error) {
	var (
		clauses []string
		args    []any
	)
	if ownerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, ownerID)
	}
	if len(states) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(states))+")")
		for _, state := range states {
			args = append(args, state)
		}
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, record)
	}
	return sessions, rows.Err()
}

// MarkSessionMerged records a successful merge.
func (s *Store) MarkSessionMerged(ctx context.Context, id, artifactFile, originalText string, totalSegments int) error {
	res, err := s.exec(ctx,
		`UPDATE sessions
         SET state = ?, artifact_file = ?, original_text = COALESCE(?, original_text),
             total_segments = ?, last_error = NULL, updated_at = ?
         WHERE id = ?`,
		SessionMerged, artifactFile, nullableString(originalText), totalSegments, now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark session merged: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "queue", "mark merged", fmt.Sprintf("session %s not found", id), nil)
	}
	return nil
}

// RecordSegmentError stores the failure of one segment index and mirrors it
// as the session's latest error.
func (s *Store) RecordSegmentError(ctx context.Context, sessionID string, index int, message string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stamp := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE session_segments SET last_error = ? WHERE session_id = ? AND idx = ?`,
			nullableString(message), sessionID, index,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_error = ?, updated_at = ? WHERE id = ?`,
			nullableString(message), stamp, sessionID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record segment error: %w", err)
	}
	return nil
}

// SegmentErrors returns the last recorded failure per segment index.
func (s *Store) SegmentErrors(ctx context.Context, sessionID string) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, last_error FROM session_segments WHERE session_id = ? AND last_error IS NOT NULL ORDER BY idx`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("segment errors: %w", err)
	}
	defer rows.Close()

	errs := make(map[int]string)
	for rows.Next() {
		var (
			idx     int
			message string
		)
		if err := rows.Scan(&idx, &message); err != nil {
			return nil, err
		}
		errs[idx] = message
	}
	return errs, rows.Err()
}

// DeleteSessions removes session records and their segment texts.
func (s *Store) DeleteSessions(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		placeholders := makePlaceholders(len(ids))
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_segments WHERE session_id IN (`+placeholders+`)`, args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return removed, nil
}
