package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"narrator/internal/config"
	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/notifications"
	"narrator/internal/observe"
	"narrator/internal/queue"
	"narrator/internal/textutil"
)

// ClipSynthesizer produces a single short clip at a fixed path.
type ClipSynthesizer interface {
	SynthesizeClip(ctx context.Context, text, path string) error
	Extension() string
}

// Manager coordinates word clip queue processing.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	clips    ClipSynthesizer
	logger   *slog.Logger
	notifier notifications.Service
	events   events.Publisher
	metrics  *observe.Metrics

	heartbeat *HeartbeatMonitor

	pollInterval  time.Duration
	errorInterval time.Duration
	taskSpacing   time.Duration
	drainTimeout  time.Duration
	wait          func(context.Context, time.Duration) bool

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	done       chan struct{}
	lastErr    error
	lastTask   *queue.WordTask
	processed  int
	exhausted  int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithEvents attaches a NATS event publisher.
func WithEvents(p events.Publisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.events = p
		}
	}
}

// WithMetrics records task outcomes on m.
func WithMetrics(metrics *observe.Metrics) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithIntervals overrides the poll and error back-off intervals.
func WithIntervals(poll, errorRetry time.Duration) ManagerOption {
	return func(m *Manager) {
		if poll > 0 {
			m.pollInterval = poll
		}
		if errorRetry > 0 {
			m.errorInterval = errorRetry
		}
	}
}

// NewManager constructs a new word queue manager.
func NewManager(cfg *config.Config, store *queue.Store, clips ClipSynthesizer, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	m := &Manager{
		cfg:           cfg,
		store:         store,
		clips:         clips,
		logger:        logger,
		notifier:      notifications.NewService(cfg),
		events:        events.Nop(),
		metrics:       observe.NopMetrics(),
		pollInterval:  time.Duration(cfg.WordQueue.PollInterval) * time.Second,
		errorInterval: time.Duration(cfg.WordQueue.ErrorRetryInterval) * time.Second,
		taskSpacing:   time.Duration(cfg.WordQueue.TaskSpacingMS) * time.Millisecond,
		drainTimeout:  time.Duration(cfg.Synthesis.DrainTimeoutSeconds) * time.Second,
		wait:          waitOrDone,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.WordQueue.HeartbeatInterval)*time.Second,
			time.Duration(cfg.WordQueue.StaleAfter)*time.Second,
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ClipRelPath is the clip location relative to the word audio directory:
// <category>/<owner key><ext>, where the key is unique per owner id.
func ClipRelPath(ownerID string, category queue.Category, ext string) string {
	return filepath.Join(string(category), textutil.PathKey(ownerID)+ext)
}

// ClipPath returns the absolute location of an owner's clip for category.
func (m *Manager) ClipPath(ownerID string, category queue.Category) string {
	return filepath.Join(m.cfg.Paths.WordAudioDir, ClipRelPath(ownerID, category, m.clips.Extension()))
}
