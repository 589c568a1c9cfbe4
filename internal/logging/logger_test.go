package logging_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"narrator/internal/config"
	"narrator/internal/logging"
	"narrator/internal/services"
)

func newFileLogger(t *testing.T, opts logging.Options) (func() string, *logging.Options) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	opts.OutputPaths = []string{logPath}
	opts.ErrorOutputPaths = []string{logPath}
	return func() string {
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(data)
	}, &opts
}

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	logger, err := logging.NewFromConfig(&cfg, filepath.Join(t.TempDir(), "run.log"))
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
}

func TestConsoleLoggerRendersSubjectHeader(t *testing.T) {
	read, opts := newFileLogger(t, logging.Options{Format: "console", Level: "info"})
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "synth")
	logger.Info("segment written",
		logging.String(logging.FieldSessionID, "0123456789abcdef"),
		logging.Int(logging.FieldSegmentIndex, 4),
		logging.Int64("size_bytes", 2048),
	)

	content := read()
	if !strings.Contains(content, "[synth] Session 01234567 #4 - segment written") {
		t.Fatalf("expected subject header, got %q", content)
	}
	if !strings.Contains(content, "size_bytes: 2048") {
		t.Fatalf("expected field line, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestJSONLoggerEmitsStructuredFields(t *testing.T) {
	read, opts := newFileLogger(t, logging.Options{Format: "json", Level: "info"})
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("task claimed", logging.String(logging.FieldTaskID, "abc"))
	content := read()
	if !strings.Contains(content, `"task_id":"abc"`) || !strings.Contains(content, `"level":"info"`) {
		t.Fatalf("unexpected json output: %q", content)
	}
}

func TestComponentOverrideRaisesVerbosity(t *testing.T) {
	read, opts := newFileLogger(t, logging.Options{
		Format:          "console",
		Level:           "info",
		ComponentLevels: map[string]string{"workflow": "debug"},
	})
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "workflow").Debug("loop tick")
	logging.NewComponentLogger(logger, "merge").Debug("hidden detail")

	content := read()
	if !strings.Contains(content, "loop tick") {
		t.Fatalf("expected workflow debug line, got %q", content)
	}
	if strings.Contains(content, "hidden detail") {
		t.Fatalf("expected merge debug line suppressed, got %q", content)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	read, opts := newFileLogger(t, logging.Options{Format: "json", Level: "info"})
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "cleanup failed", "session_cleanup_failed")
	content := read()
	for _, want := range []string{`"event_type":"session_cleanup_failed"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %s in %q", want, content)
		}
	}
}

func TestWithContextAddsIdentifiers(t *testing.T) {
	read, opts := newFileLogger(t, logging.Options{Format: "json", Level: "info"})
	logger, err := logging.New(*opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithSessionID(context.Background(), "sess-1")
	ctx = services.WithRequestID(ctx, "req-9")
	logging.WithContext(ctx, logger).Info("merge requested")
	content := read()
	if !strings.Contains(content, `"session_id":"sess-1"`) || !strings.Contains(content, `"correlation_id":"req-9"`) {
		t.Fatalf("expected context fields, got %q", content)
	}
}

func TestCleanupOldLogsRemovesExpiredRunLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "narrator-old.log")
	fresh := filepath.Join(dir, "narrator-new.log")
	for _, path := range []string{old, fresh} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "narrator-*.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh log kept: %v", err)
	}
}

func TestCleanupOldLogsKeepsNewestAndExcluded(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 4 {
		path := filepath.Join(dir, fmt.Sprintf("narrator-%d.log", i))
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		stamp := time.Now().AddDate(0, 0, -10-i)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		paths = append(paths, path)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{
		Dir:        dir,
		Pattern:    "narrator-*.log",
		Exclude:    []string{paths[3]},
		KeepNewest: 1,
	})
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	for i, want := range []bool{true, false, false, true} {
		_, err := os.Stat(paths[i])
		if exists := err == nil; exists != want {
			t.Fatalf("%s exists=%v want %v", paths[i], exists, want)
		}
	}
}
