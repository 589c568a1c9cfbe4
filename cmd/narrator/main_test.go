package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"narrator/internal/config"
	"narrator/internal/daemon"
	"narrator/internal/logging"
	"narrator/internal/merge"
	"narrator/internal/pipeline"
	"narrator/internal/synth"
	"narrator/internal/testsupport"
	"narrator/internal/tts"
	"narrator/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	apiURL     string
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "narrator.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)
	store := testsupport.MustOpenStore(t, cfg)

	frame := testsupport.MP3Frames(1)
	speech := tts.Func(func(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(frame)), nil
	})
	worker, err := synth.New(cfg, speech, synth.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	merger, err := merge.New(cfg)
	if err != nil {
		t.Fatalf("merge.New: %v", err)
	}
	svc, err := pipeline.New(cfg, store, worker, merger)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	wf := workflow.NewManager(cfg, store, worker, logging.NewNop(), workflow.WithIntervals(time.Hour, time.Hour))
	d, err := daemon.New(cfg, store, logging.NewNop(), svc, wf)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return &cliTestEnv{cfg: cfg, configPath: configPath, apiURL: server.URL}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (env *cliTestEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	full := append([]string{"--config", env.configPath, "--api", env.apiURL}, args...)
	out, err := runCLI(t, full...)
	if err != nil {
		t.Fatalf("narrator %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "narrator.toml")

	out, err := runCLI(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected target path in output, got %q", out)
	}
	if _, err := runCLI(t, "config", "init", "--path", path); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCLI(t, "config", "init", "--path", path, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateUsesConfigFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Config path: "+path) || !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSegmentPreviewReadsFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	textPath := filepath.Join(testsupport.BaseDir(cfg), "article.txt")
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120)
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}

	out, err := runCLI(t, "--config", path, "segment", "preview", textPath)
	if err != nil {
		t.Fatalf("segment preview: %v", err)
	}
	if !strings.Contains(out, "segment(s)") || !strings.Contains(out, "quick brown fox") {
		t.Fatalf("unexpected preview output %q", out)
	}

	if _, err := runCLI(t, "--config", path, "segment", "preview", filepath.Join(testsupport.BaseDir(cfg), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestClientCommandsReportUnreachableDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	_, err := runCLI(t, "--config", path, "--api", "127.0.0.1:1", "status")
	if err == nil || !strings.Contains(err.Error(), "narrator daemon") {
		t.Fatalf("expected daemon hint, got %v", err)
	}
}

func TestSessionCommandsAgainstDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	textPath := filepath.Join(testsupport.BaseDir(env.cfg), "article.txt")
	text := strings.Repeat("Narration keeps going sentence after sentence. ", 80)
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}

	out := env.run(t, "--json", "session", "submit", "--owner", "owner-1", textPath)
	if !strings.Contains(out, "\"sessionId\"") {
		t.Fatalf("expected session id in output, got %q", out)
	}

	out = env.run(t, "session", "unfinished", "owner-2")
	if !strings.Contains(out, "No unfinished sessions") {
		t.Fatalf("unexpected unfinished output %q", out)
	}

	out = env.run(t, "status")
	if !strings.Contains(out, "Synthesis pool") || !strings.Contains(out, "Preflight") {
		t.Fatalf("unexpected status output %q", out)
	}
}

func TestWordAndQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "word", "add", "--owner", "owner-1", "--category", "listening", "harbor")
	if !strings.Contains(out, "Word queued") {
		t.Fatalf("unexpected word add output %q", out)
	}
	if _, err := runCLI(t, "--config", env.configPath, "--api", env.apiURL, "word", "add", "--owner", "owner-1", "--category", "dancing", "harbor"); err == nil {
		t.Fatal("expected unknown category to fail")
	}

	out = env.run(t, "queue", "list", "--status", "pending")
	if !strings.Contains(out, "harbor") || !strings.Contains(out, "owner-1") {
		t.Fatalf("expected queued word in list, got %q", out)
	}
	if _, err := runCLI(t, "--config", env.configPath, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out = env.run(t, "queue", "stats")
	if !strings.Contains(out, "pending") {
		t.Fatalf("unexpected stats output %q", out)
	}

	out = env.run(t, "queue", "health")
	if !strings.Contains(out, "Integrity check: yes") {
		t.Fatalf("unexpected health output %q", out)
	}

	out = env.run(t, "queue", "reclaim")
	if !strings.Contains(out, "Reclaimed 0 task(s)") {
		t.Fatalf("unexpected reclaim output %q", out)
	}

	if _, err := runCLI(t, "--config", env.configPath, "queue", "clear"); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}
	out = env.run(t, "queue", "clear", "--yes")
	if !strings.Contains(out, "Removed 1 task(s)") {
		t.Fatalf("unexpected clear output %q", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.run(t, "test-notify")
	if !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBuildQueueStatusRowsSkipsEmpty(t *testing.T) {
	rows := buildQueueStatusRows(map[string]int{"pending": 2, "processing": 0, "failed": 1})
	if len(rows) != 2 || rows[0][0] != "failed" || rows[1][0] != "pending" {
		t.Fatalf("unexpected rows %v", rows)
	}
}
