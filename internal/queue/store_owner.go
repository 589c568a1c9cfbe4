package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetWordAudio returns the owner's record for a category, or nil when the
// owner never submitted a word in it.
func (s *Store) GetWordAudio(ctx context.Context, ownerID string, category Category) (*WordAudio, error) {
	record, err := scanWordAudio(s.db.QueryRowContext(ctx,
		`SELECT `+wordAudioColumns+` FROM word_audio WHERE owner_id = ? AND category = ?`,
		ownerID, category,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get word audio: %w", err)
	}
	return record, nil
}

// ListWordAudio returns every category record of an owner.
func (s *Store) ListWordAudio(ctx context.Context, ownerID string) ([]*WordAudio, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+wordAudioColumns+` FROM word_audio WHERE owner_id = ? ORDER BY category`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list word audio: %w", err)
	}
	defer rows.Close()

	var records []*WordAudio
	for rows.Next() {
		record, err := scanWordAudio(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkWordAudioReady records a clip that already exists on disk without
// going through the task lifecycle.
func (s *Store) MarkWordAudioReady(ctx context.Context, ownerID string, category Category, word, audioFile string) error {
	if _, err := s.exec(ctx,
		`INSERT INTO word_audio (owner_id, category, word, audio_generated, audio_file, failed, attempts, last_error, updated_at)
         VALUES (?, ?, ?, 1, ?, 0, 0, NULL, ?)
         ON CONFLICT (owner_id, category) DO UPDATE SET
             word = excluded.word, audio_generated = 1, audio_file = excluded.audio_file,
             failed = 0, last_error = NULL, updated_at = excluded.updated_at`,
		ownerID, category, word, nullableString(audioFile), now(),
	); err != nil {
		return fmt.Errorf("mark word audio ready: %w", err)
	}
	return nil
}
