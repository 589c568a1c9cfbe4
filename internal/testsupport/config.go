package testsupport

import (
	"path/filepath"
	"testing"

	"narrator/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.TTS.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.SessionDir = filepath.Join(base, "sessions")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.WordAudioDir = filepath.Join(base, "words")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Telemetry.Metrics = false
	cfgVal.Events.NATSURL = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFormat sets the audio response format (mp3 or wav).
func WithFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TTS.ResponseFormat = format
	}
}

// WithWordQueue tunes the word queue for fast tests.
func WithWordQueue(batchSize, maxAttempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.WordQueue.BatchSize = batchSize
		b.cfg.WordQueue.MaxAttempts = maxAttempts
		b.cfg.WordQueue.TaskSpacingMS = 0
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
