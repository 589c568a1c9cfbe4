package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	SessionDir   string `toml:"session_dir"`
	ArtifactDir  string `toml:"artifact_dir"`
	WordAudioDir string `toml:"word_audio_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// TTS contains connection settings for the OpenAI-compatible speech endpoint.
type TTS struct {
	APIKey                string  `toml:"api_key"`
	BaseURL               string  `toml:"base_url"`
	Model                 string  `toml:"model"`
	Voice                 string  `toml:"voice"`
	ResponseFormat        string  `toml:"response_format"`
	Speed                 float64 `toml:"speed"`
	ConnectTimeoutSeconds int     `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int     `toml:"read_timeout_seconds"`
	MaxAttempts           int     `toml:"max_attempts"`
}

// Segmenting controls how long texts are cut into segments.
type Segmenting struct {
	MaxChars    int     `toml:"max_chars"`
	BaseDivisor int     `toml:"base_divisor"`
	BaseMin     int     `toml:"base_min"`
	BaseMax     int     `toml:"base_max"`
	Redundancy  float64 `toml:"redundancy"`
	MinSegments int     `toml:"min_segments"`
	MaxSegments int     `toml:"max_segments"`
}

// Synthesis controls the session worker pool.
type Synthesis struct {
	Workers             int  `toml:"workers"`
	ResumeOnStart       bool `toml:"resume_on_start"`
	DrainTimeoutSeconds int  `toml:"drain_timeout_seconds"`
}

// Merge controls silence inserted between merged segments.
type Merge struct {
	ArticleSilenceMS int `toml:"article_silence_ms"`
	ClipSilenceMS    int `toml:"clip_silence_ms"`
}

// WordQueue controls the background word clip queue.
type WordQueue struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	BatchSize          int `toml:"batch_size"`
	MaxAttempts        int `toml:"max_attempts"`
	TaskSpacingMS      int `toml:"task_spacing_ms"`
	StaleAfter         int `toml:"stale_after"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	SessionMerged   bool   `toml:"session_merged"`
	WordExhausted   bool   `toml:"word_exhausted"`
	Errors          bool   `toml:"errors"`
	MinMergeSeconds int    `toml:"min_merge_seconds"`
}

// Events contains configuration for NATS owner events.
type Events struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
	ClientName    string `toml:"client_name"`
}

// Telemetry contains configuration for metrics and tracing.
type Telemetry struct {
	Metrics     bool   `toml:"metrics"`
	TraceStdout bool   `toml:"trace_stdout"`
	ServiceName string `toml:"service_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format             string            `toml:"format"`
	Level              string            `toml:"level"`
	RetentionDays      int               `toml:"retention_days"`
	ComponentOverrides map[string]string `toml:"component_overrides"`
}

// Config encapsulates all configuration values for narrator.
//
// Configuration sections by subsystem:
//   - Paths: data, session, artifact and word clip directories plus the API bind
//   - TTS: speech endpoint credentials, voice and timeouts
//   - Segmenting: long text segment policy
//   - Synthesis: session worker pool
//   - Merge: silence between merged segments
//   - WordQueue: background word clip queue timing
//   - Notifications: ntfy push notification settings
//   - Events: NATS owner events
//   - Telemetry: metrics and tracing
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	TTS           TTS           `toml:"tts"`
	Segmenting    Segmenting    `toml:"segmenting"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Merge         Merge         `toml:"merge"`
	WordQueue     WordQueue     `toml:"word_queue"`
	Notifications Notifications `toml:"notifications"`
	Events        Events        `toml:"events"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigLocation)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigLocation)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("narrator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.DataDir,
		c.Paths.SessionDir,
		c.Paths.ArtifactDir,
		c.Paths.WordAudioDir,
		c.Paths.LogDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the task and session store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "narrator.db")
}

// ConnectTimeout returns the TTS connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.TTS.ConnectTimeoutSeconds) * time.Second
}

// ReadTimeout returns the TTS read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.TTS.ReadTimeoutSeconds) * time.Second
}

// AudioExtension returns the file extension matching the configured response format.
func (c *Config) AudioExtension() string {
	return "." + c.TTS.ResponseFormat
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
