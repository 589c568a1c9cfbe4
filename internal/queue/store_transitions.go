package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"narrator/internal/services"
)

func notFound(op, id string) error {
	return services.Wrap(services.ErrNotFound, "queue", op, fmt.Sprintf("word task %s not found", id), nil)
}

// CompleteWordTask marks the task Completed, flips the owner's audio flag, and
// deletes the task row, all in one transaction. When the owner record names a
// different word than the task, the produced clip is stale: the task returns
// to Pending with the newer word instead.
func (s *Store) CompleteWordTask(ctx context.Context, id, audioFile string) (CompleteOutcome, error) {
	var outcome CompleteOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		outcome = CompleteOutcome{}
		task, err := scanWordTask(tx.QueryRowContext(ctx, `SELECT `+wordTaskColumns+` FROM word_tasks WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("complete", id)
		}
		if err != nil {
			return err
		}
		stamp := now()

		var current sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT word FROM word_audio WHERE owner_id = ? AND category = ?`,
			task.OwnerID, task.Category,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if current.Valid && current.String != task.Word {
			outcome = CompleteOutcome{Superseded: true, Word: current.String}
			_, err := tx.ExecContext(ctx,
				`UPDATE word_tasks SET status = ?, word = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
				StatusPending, current.String, stamp, id,
			)
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE word_tasks SET status = ?, updated_at = ? WHERE id = ?`,
			StatusCompleted, stamp, id,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO word_audio (owner_id, category, word, audio_generated, audio_file, failed, attempts, last_error, updated_at)
             VALUES (?, ?, ?, 1, ?, 0, ?, NULL, ?)
             ON CONFLICT (owner_id, category) DO UPDATE SET
                 word = excluded.word, audio_generated = 1, audio_file = excluded.audio_file,
                 failed = 0, attempts = excluded.attempts, last_error = NULL, updated_at = excluded.updated_at`,
			task.OwnerID, task.Category, task.Word, nullableString(audioFile), task.Attempts+1, stamp,
		); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM word_tasks WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return CompleteOutcome{}, fmt.Errorf("complete word task: %w", err)
	}
	return outcome, nil
}

// FailWordTask records a failed attempt. The attempt counter is incremented
// in SQL. Below the ceiling the task returns to Pending; at the ceiling it
// becomes Exhausted, the owner record keeps the failure marker, and the row is
// deleted.
func (s *Store) FailWordTask(ctx context.Context, id, cause string) (FailOutcome, error) {
	var outcome FailOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		outcome = FailOutcome{}
		stamp := now()
		res, err := tx.ExecContext(ctx,
			`UPDATE word_tasks SET attempts = attempts + 1, status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			StatusFailed, nullableString(cause), stamp, id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("fail", id)
		}
		task, err := scanWordTask(tx.QueryRowContext(ctx, `SELECT `+wordTaskColumns+` FROM word_tasks WHERE id = ?`, id))
		if err != nil {
			return err
		}

		if task.Attempts < task.MaxAttempts {
			if _, err := tx.ExecContext(ctx,
				`UPDATE word_tasks SET status = ?, last_heartbeat = NULL WHERE id = ?`,
				StatusPending, id,
			); err != nil {
				return err
			}
			task.Status = StatusPending
			task.LastHeartbeat = nil
			outcome.Task = task
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO word_audio (owner_id, category, word, audio_generated, audio_file, failed, attempts, last_error, updated_at)
             VALUES (?, ?, ?, 0, NULL, 1, ?, ?, ?)
             ON CONFLICT (owner_id, category) DO UPDATE SET
                 word = excluded.word, audio_generated = 0, audio_file = NULL, failed = 1,
                 attempts = excluded.attempts, last_error = excluded.last_error, updated_at = excluded.updated_at`,
			task.OwnerID, task.Category, task.Word, task.Attempts, nullableString(cause), stamp,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM word_tasks WHERE id = ?`, id); err != nil {
			return err
		}
		task.Status = StatusExhausted
		outcome.Task = task
		outcome.Exhausted = true
		return nil
	})
	if err != nil {
		return FailOutcome{}, fmt.Errorf("fail word task: %w", err)
	}
	return outcome, nil
}

// ReleaseClaimed returns Processing tasks to Pending without charging an
// attempt.
func (s *Store) ReleaseClaimed(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now(), StatusProcessing)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.exec(ctx,
		`UPDATE word_tasks SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("release claimed tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns every Processing task to Pending. It runs at
// daemon start, when no task can legitimately be in flight.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE word_tasks SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		StatusPending, now(), StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	stamp := now()
	if _, err := s.exec(ctx,
		`UPDATE word_tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		stamp, stamp, id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns Processing tasks whose heartbeat is older
// than cutoff to Pending. Attempts are not charged.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE word_tasks SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND COALESCE(last_heartbeat, updated_at) < ?`,
		StatusPending, now(), StatusProcessing, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}
