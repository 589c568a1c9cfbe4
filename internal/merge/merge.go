package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"narrator/internal/config"
	"narrator/internal/fileutil"
	"narrator/internal/logging"
	"narrator/internal/observe"
	"narrator/internal/services"
	"narrator/internal/session"
)

// Kind selects the silence inserted between segments.
type Kind string

const (
	KindArticle Kind = "article"
	KindClip    Kind = "clip"
)

// ParseKind maps user input onto a Kind. Empty input selects KindArticle.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindArticle:
		return KindArticle, nil
	case KindClip:
		return KindClip, nil
	default:
		return "", services.Wrap(services.ErrValidation, "merge", "parse kind", fmt.Sprintf("unknown merge kind %q", value), nil)
	}
}

// Request describes one merge.
type Request struct {
	SessionID     string
	SegmentDir    string
	ExpectedCount int
	OriginalText  string
	Kind          Kind
}

// Artifact describes a merged output.
type Artifact struct {
	Path     string
	TextPath string
	Filename string
	Segments int
	Bytes    int64
}

// Merger writes merged artifacts into one directory.
type Merger struct {
	artifactDir string
	ext         string
	silence     map[Kind]time.Duration
	logger      *slog.Logger
	metrics     *observe.Metrics
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the merger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records merge outcomes.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(m *Merger) { m.metrics = metrics }
}

// New builds a Merger writing to cfg.Paths.ArtifactDir.
func New(cfg *config.Config, opts ...Option) (*Merger, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "merge", "init", "config is required", nil)
	}
	m := &Merger{
		artifactDir: cfg.Paths.ArtifactDir,
		ext:         cfg.AudioExtension(),
		silence: map[Kind]time.Duration{
			KindArticle: time.Duration(cfg.Merge.ArticleSilenceMS) * time.Millisecond,
			KindClip:    time.Duration(cfg.Merge.ClipSilenceMS) * time.Millisecond,
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "merge")
	return m, nil
}

// ArtifactDir returns the output directory.
func (m *Merger) ArtifactDir() string { return m.artifactDir }

// ArtifactName returns the artifact file name of a session.
func (m *Merger) ArtifactName(sessionID string) string { return sessionID + m.ext }

// Merge concatenates the session's segments with the configured silence.
func (m *Merger) Merge(ctx context.Context, req Request) (artifact Artifact, err error) {
	start := time.Now()
	if strings.TrimSpace(req.SessionID) == "" {
		return Artifact{}, services.Wrap(services.ErrValidation, "merge", "validate", "session id is required", nil)
	}
	if req.ExpectedCount <= 0 {
		return Artifact{}, services.Wrap(services.ErrValidation, "merge", "validate", "total segments must be positive", nil)
	}
	kind := req.Kind
	if kind == "" {
		kind = KindArticle
	}
	silence, ok := m.silence[kind]
	if !ok {
		return Artifact{}, services.Wrap(services.ErrValidation, "merge", "validate", fmt.Sprintf("unknown merge kind %q", kind), nil)
	}

	ctx, span := observe.StartSpan(ctx, "merge.session", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.Int("segments.expected", req.ExpectedCount),
		attribute.String("merge.kind", string(kind)),
	))
	defer func() {
		status := "ok"
		if err != nil {
			status = services.Details(err).Kind
		}
		m.metrics.RecordMerge(ctx, string(kind), status, time.Since(start))
		observe.EndSpan(span, err)
	}()

	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldSessionID, req.SessionID))

	progress, err := session.Scan(req.SegmentDir, m.ext, req.ExpectedCount)
	if err != nil {
		return Artifact{}, err
	}
	if len(progress.Missing) > 0 {
		return Artifact{}, &services.MissingSegmentError{SessionID: req.SessionID, Missing: progress.Missing}
	}

	inputs := make([]string, 0, req.ExpectedCount)
	for i := 0; i < req.ExpectedCount; i++ {
		inputs = append(inputs, filepath.Join(req.SegmentDir, session.SegmentFileName(i, m.ext)))
	}
	codec, err := codecFor(m.ext)
	if err != nil {
		return Artifact{}, err
	}

	if err := os.MkdirAll(m.artifactDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create artifact dir: %w", err)
	}
	filename := m.ArtifactName(req.SessionID)
	finalPath := filepath.Join(m.artifactDir, filename)
	written, err := writeArtifact(ctx, finalPath, codec, inputs, silence)
	if err != nil {
		return Artifact{}, err
	}

	textPath := strings.TrimSuffix(finalPath, m.ext) + ".txt"
	if err := fileutil.WriteFileAtomic(textPath, []byte(req.OriginalText), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write sidecar text: %w", err)
	}

	if err := os.RemoveAll(req.SegmentDir); err != nil {
		logging.WarnWithContext(logger, "segment directory cleanup failed", "merge_cleanup_failed",
			logging.String("segment_dir", req.SegmentDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment files remain on disk"),
		)
	}

	logger.Info("session merged",
		logging.String("artifact", filename),
		logging.Int("segments", req.ExpectedCount),
		logging.Int64("bytes", written),
		logging.String("kind", string(kind)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return Artifact{
		Path:     finalPath,
		TextPath: textPath,
		Filename: filename,
		Segments: req.ExpectedCount,
		Bytes:    written,
	}, nil
}

func writeArtifact(ctx context.Context, finalPath string, c codec, inputs []string, silence time.Duration) (int64, error) {
	out, err := fileutil.CreateTemp(finalPath)
	if err != nil {
		return 0, fmt.Errorf("create artifact: %w", err)
	}
	tmp := out.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if err := c.concat(ctx, out, inputs, silence); err != nil {
		_ = out.Close()
		cleanup()
		return 0, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		cleanup()
		return 0, fmt.Errorf("sync artifact: %w", err)
	}
	info, statErr := out.Stat()
	if err := out.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("close artifact: %w", err)
	}
	if statErr != nil {
		cleanup()
		return 0, fmt.Errorf("stat artifact: %w", statErr)
	}
	if info.Size() == 0 {
		cleanup()
		return 0, errors.New("merged artifact is empty")
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		cleanup()
		return 0, fmt.Errorf("commit artifact: %w", err)
	}
	return info.Size(), nil
}
