package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var expectedTables = []string{"schema_version", "word_tasks", "word_audio", "sessions", "session_segments"}

// Stats returns a count of word tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM word_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue and session state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending, StatusFailed:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		}
	}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE state = ?`, SessionActive)
	if err := row.Scan(&health.Sessions); err != nil {
		return HealthSummary{}, fmt.Errorf("count active sessions: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM word_audio WHERE failed = 1`)
	if err := row.Scan(&health.Exhausted); err != nil {
		return HealthSummary{}, fmt.Errorf("count exhausted owners: %w", err)
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the database file.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	for _, table := range expectedTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	version, err := s.readSchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version
	if _, ok := present["word_tasks"]; ok {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM word_tasks").Scan(&health.TotalTasks); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count word tasks: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// ClearWordTasks removes every word task. Owner records are left untouched.
func (s *Store) ClearWordTasks(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM word_tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear word tasks: %w", err)
	}
	return res.RowsAffected()
}

// RemoveWordTask deletes one task regardless of status.
func (s *Store) RemoveWordTask(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM word_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove word task: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
