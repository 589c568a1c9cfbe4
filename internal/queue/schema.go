package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// migrations are applied in order; the schema version is the number applied.
// Append new statements here rather than editing earlier entries.
var migrations = []string{
	schemaSQL,
	`ALTER TABLE session_segments ADD COLUMN last_error TEXT`,
}

// ErrSchemaMismatch is returned when the database was written by a newer
// build than this one.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func currentSchemaVersion() int { return len(migrations) }

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.readSchemaVersion(ctx)
	if err != nil {
		return err
	}
	target := currentSchemaVersion()
	switch {
	case version == target:
		return nil
	case version > target:
		return fmt.Errorf("%w: database %s is at version %d, this build supports %d",
			ErrSchemaMismatch, s.path, version, target)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := version; i < target; i++ {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return fmt.Errorf("apply migration %d: %w", i+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("reset schema version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, target); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

// readSchemaVersion returns 0 for a database that has never been migrated.
func (s *Store) readSchemaVersion(ctx context.Context) (int, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
