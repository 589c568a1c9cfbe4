package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"narrator/internal/config"
	"narrator/internal/fileutil"
	"narrator/internal/logging"
	"narrator/internal/observe"
	"narrator/internal/services"
	"narrator/internal/session"
	"narrator/internal/tts"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	clipIndex          = -1
)

// Worker performs synthesis with retry and atomic file commits.
type Worker struct {
	synth       tts.Synthesizer
	ext         string
	voice       string
	format      string
	maxAttempts int
	baseDelay   time.Duration
	sleeper     func(time.Duration)
	logger      *slog.Logger
	metrics     *observe.Metrics

	// flights coalesces concurrent requests for the same output path.
	flights singleflight.Group
}

// Option configures a Worker.
type Option func(*Worker)

// WithMaxAttempts overrides the attempt ceiling (defaults to 3).
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithBaseDelay overrides the back-off unit (defaults to 1s).
func WithBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay >= 0 {
			w.baseDelay = delay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(w *Worker) {
		w.sleeper = sleeper
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics records attempts and committed files.
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// New builds a Worker over s. Format, voice and attempt count come from cfg.TTS.
func New(cfg *config.Config, s tts.Synthesizer, opts ...Option) (*Worker, error) {
	if s == nil {
		return nil, services.Wrap(services.ErrConfiguration, "synth", "init", "synthesizer is required", nil)
	}
	w := &Worker{
		synth:       s,
		ext:         ".mp3",
		format:      "mp3",
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      logging.NewNop(),
	}
	if cfg != nil {
		w.ext = cfg.AudioExtension()
		w.format = cfg.TTS.ResponseFormat
		w.voice = cfg.TTS.Voice
		if cfg.TTS.MaxAttempts > 0 {
			w.maxAttempts = cfg.TTS.MaxAttempts
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "synth")
	return w, nil
}

// Extension returns the file extension of produced audio, including the dot.
func (w *Worker) Extension() string { return w.ext }

// Synthesize produces segment index of a session inside segmentDir and returns
// its final path.
func (w *Worker) Synthesize(ctx context.Context, text, segmentDir string, index int) (string, error) {
	if index < 0 {
		return "", services.Wrap(services.ErrValidation, "synth", "segment", fmt.Sprintf("invalid segment index %d", index), nil)
	}
	path := filepath.Join(segmentDir, session.SegmentFileName(index, w.ext))
	return path, w.produce(ctx, text, path, index)
}

// SynthesizeClip produces a standalone clip at path.
func (w *Worker) SynthesizeClip(ctx context.Context, text, path string) error {
	return w.produce(ctx, text, path, clipIndex)
}

func (w *Worker) produce(ctx context.Context, text, path string, index int) error {
	_, err, shared := w.flights.Do(path, func() (any, error) {
		return nil, w.produceOnce(ctx, text, path, index)
	})
	if shared {
		logging.WithContext(ctx, w.logger).Debug("joined in-flight synthesis",
			logging.String("path", path),
			logging.Int(logging.FieldSegmentIndex, index),
		)
	}
	return err
}

func (w *Worker) produceOnce(ctx context.Context, text, path string, index int) (err error) {
	logger := logging.WithContext(ctx, w.logger).With(logging.String("path", path))
	if index >= 0 {
		logger = logger.With(logging.Int(logging.FieldSegmentIndex, index))
	}
	if fileutil.IsNonEmptyFile(path) {
		logger.Debug("audio already present; skipping synthesis")
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "synth.produce", trace.WithAttributes(
		attribute.Int("segment.index", index),
		attribute.Int("text.length", len([]rune(text))),
	))
	defer func() { observe.EndSpan(span, err) }()

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.attempt(ctx, text, path)
		if err == nil {
			w.metrics.RecordFileWritten(ctx, kindLabel(index))
			logger.Info("audio written", logging.Int(logging.FieldAttempt, attempt))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if fileutil.IsNonEmptyFile(path) {
			logger.Debug("audio committed by another writer", logging.Int(logging.FieldAttempt, attempt))
			return nil
		}
		lastErr = err
		if !services.IsRetryable(err) {
			logging.WarnWithContext(logger, "synthesis rejected; not retrying", "synth_rejected",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Details(err).Hint),
			)
			return &services.SegmentError{Index: index, Attempts: attempt, Last: err}
		}
		if attempt == w.maxAttempts {
			break
		}
		delay := w.retryDelay(err, attempt)
		logger.Warn("synthesis attempt failed; retrying",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}

	logging.ErrorWithContext(logger, "synthesis failed", "synth_exhausted",
		logging.Int("attempts", w.maxAttempts),
		logging.Error(lastErr),
		logging.String(logging.FieldImpact, "audio file not produced"),
	)
	return &services.SegmentError{Index: index, Attempts: w.maxAttempts, Last: lastErr}
}

func (w *Worker) attempt(ctx context.Context, text, path string) error {
	start := time.Now()
	body, err := w.synth.Synthesize(ctx, tts.Request{Text: text, Voice: w.voice, Format: w.format})
	if err != nil {
		err = tts.Classify("speech", err)
		w.metrics.RecordSynthAttempt(ctx, outcomeLabel(err), time.Since(start))
		return err
	}
	defer body.Close()

	_, err = fileutil.WriteStreamAtomic(path, body)
	switch {
	case errors.Is(err, fileutil.ErrEmpty):
		err = services.Wrap(services.ErrEmptyResult, "synth", "write", "endpoint returned zero bytes", nil)
	case err != nil && !errors.Is(err, services.ErrTransient) && isLocalFSError(err):
		err = fmt.Errorf("synth: write %s: %w", filepath.Base(path), err)
	case err != nil:
		err = tts.Classify("read body", err)
	}
	w.metrics.RecordSynthAttempt(ctx, outcomeLabel(err), time.Since(start))
	return err
}

func isLocalFSError(err error) bool {
	var pathErr *os.PathError
	var linkErr *os.LinkError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr)
}

func (w *Worker) retryDelay(err error, attempt int) time.Duration {
	if errors.Is(err, services.ErrTransient) {
		delay := w.baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		return delay
	}
	return w.baseDelay * time.Duration(attempt)
}

func (w *Worker) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if w.sleeper != nil {
		w.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func kindLabel(index int) string {
	if index == clipIndex {
		return "clip"
	}
	return "segment"
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, services.ErrEmptyResult):
		return "empty"
	case errors.Is(err, services.ErrClientRejected):
		return "rejected"
	case errors.Is(err, services.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
