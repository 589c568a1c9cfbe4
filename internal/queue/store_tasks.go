package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"narrator/internal/services"
)

// EnqueueWordTask records a Pending task for an owner and category and resets
// the owner's audio record. When a non-terminal task already exists for the
// pair it is returned with created=false. A Pending task takes the newer word
// directly; a Processing task keeps the word it claimed and only the owner
// record moves on, so CompleteWordTask can detect the change.
func (s *Store) EnqueueWordTask(ctx context.Context, in WordTaskInput) (task *WordTask, created bool, err error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Word = strings.TrimSpace(in.Word)
	if in.OwnerID == "" || in.Word == "" {
		return nil, false, services.Wrap(services.ErrValidation, "queue", "enqueue", "owner id and word are required", nil)
	}
	if _, err := ParseCategory(string(in.Category)); err != nil {
		return nil, false, err
	}
	if in.MaxAttempts <= 0 {
		return nil, false, services.Wrap(services.ErrValidation, "queue", "enqueue", "max attempts must be positive", nil)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanWordTask(tx.QueryRowContext(ctx,
			`SELECT `+wordTaskColumns+` FROM word_tasks WHERE owner_id = ? AND category = ? ORDER BY created_at LIMIT 1`,
			in.OwnerID, in.Category,
		))
		switch {
		case err == nil:
			task, created = existing, false
			stamp := now()
			if existing.Status == StatusPending && existing.Word != in.Word {
				if _, err := tx.ExecContext(ctx,
					`UPDATE word_tasks SET word = ?, updated_at = ? WHERE id = ? AND status = ?`,
					in.Word, stamp, existing.ID, StatusPending,
				); err != nil {
					return err
				}
				existing.Word = in.Word
			}
			// The owner record always names the latest requested word.
			_, err := tx.ExecContext(ctx,
				`UPDATE word_audio SET word = ?, audio_generated = 0, audio_file = NULL, updated_at = ?
                 WHERE owner_id = ? AND category = ? AND word <> ?`,
				in.Word, stamp, in.OwnerID, in.Category, in.Word,
			)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		stamp := now()
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO word_tasks (id, owner_id, word, category, status, attempts, max_attempts, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			id, in.OwnerID, in.Word, in.Category, StatusPending, in.MaxAttempts, stamp, stamp,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO word_audio (owner_id, category, word, audio_generated, audio_file, failed, attempts, last_error, updated_at)
             VALUES (?, ?, ?, 0, NULL, 0, 0, NULL, ?)
             ON CONFLICT (owner_id, category) DO UPDATE SET
                 word = excluded.word, audio_generated = 0, audio_file = NULL,
                 failed = 0, attempts = 0, last_error = NULL, updated_at = excluded.updated_at`,
			in.OwnerID, in.Category, in.Word, stamp,
		); err != nil {
			return err
		}
		task, err = scanWordTask(tx.QueryRowContext(ctx, `SELECT `+wordTaskColumns+` FROM word_tasks WHERE id = ?`, id))
		created = true
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue word task: %w", err)
	}
	return task, created, nil
}

// GetWordTask fetches a task by identifier. A missing task returns nil, nil.
func (s *Store) GetWordTask(ctx context.Context, id string) (*WordTask, error) {
	task, err := scanWordTask(s.db.QueryRowContext(ctx, `SELECT `+wordTaskColumns+` FROM word_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get word task: %w", err)
	}
	return task, nil
}

// FindActiveWordTask returns the non-terminal task for an owner and category, if any.
func (s *Store) FindActiveWordTask(ctx context.Context, ownerID string, category Category) (*WordTask, error) {
	task, err := scanWordTask(s.db.QueryRowContext(ctx,
		`SELECT `+wordTaskColumns+` FROM word_tasks WHERE owner_id = ? AND category = ? ORDER BY created_at LIMIT 1`,
		ownerID, category,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find word task: %w", err)
	}
	return task, nil
}

// ListWordTasks returns tasks filtered by status (or all tasks when no status
// is provided), oldest first.
func (s *Store) ListWordTasks(ctx context.Context, statuses ...Status) ([]*WordTask, error) {
	query := `SELECT ` + wordTaskColumns + ` FROM word_tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list word tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*WordTask
	for rows.Next() {
		task, err := scanWordTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimPending marks up to limit of the oldest Pending tasks as Processing
// and returns them in creation order.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*WordTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []*WordTask
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = claimed[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT `+wordTaskColumns+` FROM word_tasks
             WHERE status = ? AND attempts < max_attempts
             ORDER BY created_at, rowid LIMIT ?`,
			StatusPending, limit,
		)
		if err != nil {
			return err
		}
		var candidates []*WordTask
		for rows.Next() {
			task, err := scanWordTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			candidates = append(candidates, task)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		stamp := now()
		for _, task := range candidates {
			res, err := tx.ExecContext(ctx,
				`UPDATE word_tasks SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
				StatusProcessing, stamp, stamp, task.ID, StatusPending,
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			task.Status = StatusProcessing
			if hb, err := parseTimeString(stamp); err == nil {
				task.LastHeartbeat = &hb
				task.UpdatedAt = hb
			}
			claimed = append(claimed, task)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending tasks: %w", err)
	}
	return claimed, nil
}
