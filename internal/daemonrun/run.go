package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"narrator/internal/config"
	"narrator/internal/daemon"
	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/merge"
	"narrator/internal/notifications"
	"narrator/internal/observe"
	"narrator/internal/pipeline"
	"narrator/internal/queue"
	"narrator/internal/synth"
	"narrator/internal/tts"
	"narrator/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the narrator daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("narrator-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		ComponentLevels:  cfg.Logging.ComponentOverrides,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update narrator.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "narrator-*.log", Exclude: []string{logPath}, KeepNewest: 3},
	)
	pidPath := filepath.Join(cfg.Paths.DataDir, "narrator.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	telemetry, err := observe.Setup(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Error(err))
		}
	}()

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	speech, err := tts.NewFromConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create speech client: %w", err)
	}
	worker, err := synth.New(cfg, speech, synth.WithLogger(logger), synth.WithMetrics(telemetry.Metrics))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create synthesis worker: %w", err)
	}
	merger, err := merge.New(cfg, merge.WithLogger(logger), merge.WithMetrics(telemetry.Metrics))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create merger: %w", err)
	}

	publisher, err := events.Connect(cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "event publisher unavailable", "events_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check events.nats_url"),
			logging.String(logging.FieldImpact, "owners will not receive completion events"),
		)
		publisher = events.Nop()
	}
	defer publisher.Close()

	notifier := notifications.NewService(cfg)
	svc, err := pipeline.New(cfg, store, worker, merger,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(telemetry.Metrics),
		pipeline.WithNotifier(notifier),
		pipeline.WithEvents(publisher),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create pipeline: %w", err)
	}
	wf := workflow.NewManager(cfg, store, worker, logger,
		workflow.WithNotifier(notifier),
		workflow.WithEvents(publisher),
		workflow.WithMetrics(telemetry.Metrics),
	)

	d, err := daemon.New(cfg, store, logger, svc, wf,
		daemon.WithMetrics(telemetry.Metrics, telemetry.Handler),
		daemon.WithNotifier(notifier),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and queue database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("narrator daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "narrator.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("tts_base_url", cfg.TTS.BaseURL),
		logging.String("tts_model", cfg.TTS.Model),
		logging.String("tts_voice", cfg.TTS.Voice),
		logging.String("tts_format", cfg.TTS.ResponseFormat),
		logging.Bool("tts_key_present", strings.TrimSpace(cfg.TTS.APIKey) != ""),
		logging.Int("synthesis_workers", cfg.Synthesis.Workers),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("nats_enabled", strings.TrimSpace(cfg.Events.NATSURL) != ""),
		logging.Bool("metrics_enabled", cfg.Telemetry.Metrics),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
