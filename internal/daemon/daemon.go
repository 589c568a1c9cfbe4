package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"narrator/internal/config"
	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/observe"
	"narrator/internal/pipeline"
	"narrator/internal/preflight"
	"narrator/internal/queue"
	"narrator/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	pipeline *pipeline.Service
	workflow *workflow.Manager
	notifier notifications.Service
	metrics  *observe.Metrics
	promHTTP http.Handler
	logPath  string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures optional Daemon behavior.
type Option func(*Daemon)

// WithMetrics records HTTP latency on m and serves handler at /metrics.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(d *Daemon) {
		if m != nil {
			d.metrics = m
		}
		d.promHTTP = handler
	}
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithLogPath records the active log file for status output.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Pipeline     pipeline.Status
	Health       queue.HealthSummary
	Preflight    []preflight.Result
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, svc *pipeline.Service, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || svc == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, pipeline, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "narrator.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		pipeline: svc,
		workflow: wf,
		notifier: notifications.NewService(cfg),
		metrics:  observe.NopMetrics(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the synthesis pool, the word
// queue and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another narrator daemon instance is already running")
	}

	for _, result := range preflight.Failed(preflight.RunLocal(d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or free disk space"),
			logging.String(logging.FieldImpact, "synthesis may fail for new sessions"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.pipeline.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := d.workflow.Start(d.ctx); err != nil {
		d.pipeline.Stop()
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.pipeline.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("narrator daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.pipeline.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("narrator daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Handler exposes the API routes, for embedding and tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// APIAddr returns the address the API server listens on, or "" when it is not
// listening.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// ListTasks returns word tasks filtered by optional statuses.
func (d *Daemon) ListTasks(ctx context.Context, statuses []queue.Status) ([]*queue.WordTask, error) {
	return d.store.ListWordTasks(ctx, statuses...)
}

// ReclaimStale returns Processing tasks with an expired heartbeat to Pending.
func (d *Daemon) ReclaimStale(ctx context.Context) (int64, error) {
	return d.workflow.ReclaimStale(ctx)
}

// ClearQueue removes all word tasks.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.ClearWordTasks(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		Preflight:    preflight.RunLocal(d.cfg),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if pipelineStatus, err := d.pipeline.Status(ctx); err == nil {
		status.Pipeline = pipelineStatus
	} else {
		d.logger.Warn("failed to read pipeline status", logging.Error(err))
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Health = health
	} else {
		d.logger.Warn("failed to read queue health", logging.Error(err))
	}
	return status
}
