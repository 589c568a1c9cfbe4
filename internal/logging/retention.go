package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget names a directory and glob of log files to prune.
// Exclude lists files that must survive regardless of age (the active log),
// and KeepNewest spares that many of the most recent matches.
type RetentionTarget struct {
	Dir        string
	Pattern    string
	Exclude    []string
	KeepNewest int
}

type logFile struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs deletes files older than retentionDays across targets and
// returns how many were removed. retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		for _, path := range target.expired(cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("old logs pruned", Int("removed", removed), Int("retention_days", retentionDays))
	}
	return removed
}

// expired lists matching files older than cutoff, newest first, after the
// exclusions and KeepNewest allowance are applied.
func (t RetentionTarget) expired(cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	skip := make(map[string]bool, len(t.Exclude))
	for _, path := range t.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			skip[abs] = true
		}
	}
	pattern := strings.TrimSpace(t.Pattern)

	var files []logFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil || skip[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: path, modTime: info.ModTime()})
	}
	slices.SortFunc(files, func(a, b logFile) int { return b.modTime.Compare(a.modTime) })

	var out []string
	for i, f := range files {
		if i < t.KeepNewest || !f.modTime.Before(cutoff) {
			continue
		}
		out = append(out, f.path)
	}
	return out
}
