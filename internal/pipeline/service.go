package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"narrator/internal/config"
	"narrator/internal/events"
	"narrator/internal/logging"
	"narrator/internal/merge"
	"narrator/internal/notifications"
	"narrator/internal/observe"
	"narrator/internal/queue"
	"narrator/internal/segment"
	"narrator/internal/services"
	"narrator/internal/session"
)

// Synthesizer produces segment and clip audio files.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, segmentDir string, index int) (string, error)
	SynthesizeClip(ctx context.Context, text, path string) error
	Extension() string
}

// Service orchestrates sessions, merges and word clip requests.
type Service struct {
	cfg      *config.Config
	store    *queue.Store
	synth    Synthesizer
	merger   *merge.Merger
	policy   segment.Policy
	layout   session.Layout
	logger   *slog.Logger
	metrics  *observe.Metrics
	notifier notifications.Service
	events   events.Publisher
	pool     *pool
	drain    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records session activity on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithEvents attaches a NATS event publisher.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// New wires a Service. The synthesis pool is idle until Start.
func New(cfg *config.Config, store *queue.Store, synth Synthesizer, merger *merge.Merger, opts ...Option) (*Service, error) {
	if cfg == nil || store == nil || synth == nil || merger == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config, store, synthesizer and merger are required", nil)
	}
	s := &Service{
		cfg:      cfg,
		store:    store,
		synth:    synth,
		merger:   merger,
		policy:   segment.PolicyFromConfig(cfg),
		layout:   session.Layout{Root: cfg.Paths.SessionDir, Ext: synth.Extension()},
		logger:   logging.NewNop(),
		metrics:  observe.NopMetrics(),
		notifier: notifications.NewService(cfg),
		events:   events.Nop(),
		drain:    time.Duration(cfg.Synthesis.DrainTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "pipeline")
	s.pool = newPool(cfg.Synthesis.Workers, s.logger, s.runSegment)
	return s, nil
}

// Start launches the synthesis pool and, when configured, re-dispatches the
// missing segments of every active session.
func (s *Service) Start(ctx context.Context) error {
	if err := s.pool.start(ctx); err != nil {
		return err
	}
	s.logger.Info("synthesis pool started",
		logging.Int("workers", s.pool.workers),
		logging.String(logging.FieldEventType, "pool_start"),
	)
	if s.cfg.Synthesis.ResumeOnStart {
		s.resumeActive(ctx)
	}
	return nil
}

// Stop drains the synthesis pool.
func (s *Service) Stop() {
	s.pool.stop(s.drain)
	s.logger.Info("synthesis pool stopped", logging.String(logging.FieldEventType, "pool_stop"))
}

// Layout exposes the session directory layout.
func (s *Service) Layout() session.Layout { return s.layout }

// Status describes the synthesis pool.
type Status struct {
	Pool           PoolStats `json:"pool"`
	ActiveSessions int       `json:"activeSessions"`
}

// Status reports pool occupancy and the number of active sessions.
func (s *Service) Status(ctx context.Context) (Status, error) {
	active, err := s.store.ListSessions(ctx, "", queue.SessionActive)
	if err != nil {
		return Status{}, err
	}
	return Status{Pool: s.pool.stats(), ActiveSessions: len(active)}, nil
}

func (s *Service) resumeActive(ctx context.Context) {
	sessions, err := s.store.ListSessions(ctx, "", queue.SessionActive)
	if err != nil {
		logging.WarnWithContext(s.logger, "could not list sessions to resume", "resume_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "unfinished sessions need a manual resume"),
		)
		return
	}
	resumed := 0
	for _, record := range sessions {
		if record.TotalSegments == 0 {
			continue
		}
		dispatched, err := s.ResumeSession(ctx, record.ID)
		if err != nil {
			logging.WarnWithContext(s.logger, "session resume failed", "resume_failed",
				logging.String(logging.FieldSessionID, record.ID),
				logging.Error(err),
			)
			continue
		}
		if len(dispatched) > 0 {
			resumed++
		}
	}
	if resumed > 0 {
		s.logger.Info("resumed unfinished sessions",
			logging.Int("count", resumed),
			logging.String(logging.FieldEventType, "sessions_resumed"),
		)
	}
}

func (s *Service) runSegment(ctx context.Context, j job) {
	ctx = services.WithSessionID(services.WithOwnerID(ctx, j.ownerID), j.sessionID)
	logger := logging.WithContext(ctx, s.logger).With(logging.Int(logging.FieldSegmentIndex, j.index))

	if _, err := s.synth.Synthesize(ctx, j.text, s.layout.Dir(j.sessionID), j.index); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("segment synthesis interrupted by shutdown")
			return
		}
		logging.ErrorWithContext(logger, "segment synthesis failed", "segment_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "resume the session once the endpoint is healthy"),
		)
		s.recordSegmentError(ctx, j.sessionID, j.index, err)
	}
}

func (s *Service) recordSegmentError(ctx context.Context, sessionID string, index int, cause error) {
	var segErr *services.SegmentError
	if errors.As(cause, &segErr) && segErr.Index >= 0 {
		index = segErr.Index
	}
	if err := s.store.RecordSegmentError(context.WithoutCancel(ctx), sessionID, index, cause.Error()); err != nil {
		s.logger.Warn("failed to record segment error",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Int(logging.FieldSegmentIndex, index),
			logging.Error(err),
		)
	}
}

func validateSessionID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed != id || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", fmt.Sprintf("invalid session id %q", id), nil)
	}
	return nil
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "owner id is required", nil)
	}
	return nil
}
