package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateSegmenting(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateWordQueue(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTTS() error {
	if c.TTS.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigLocation
		}
		return fmt.Errorf("tts.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'narrator config init')", defaultPath)
	}
	switch c.TTS.ResponseFormat {
	case "mp3", "wav":
	default:
		return fmt.Errorf("tts.response_format %q is not supported (use mp3 or wav)", c.TTS.ResponseFormat)
	}
	if c.TTS.Speed < 0.25 || c.TTS.Speed > 4.0 {
		return errors.New("tts.speed must be between 0.25 and 4.0")
	}
	return ensurePositiveMap(map[string]int{
		"tts.connect_timeout_seconds": c.TTS.ConnectTimeoutSeconds,
		"tts.read_timeout_seconds":    c.TTS.ReadTimeoutSeconds,
		"tts.max_attempts":            c.TTS.MaxAttempts,
	})
}

func (c *Config) validateSegmenting() error {
	s := c.Segmenting
	if err := ensurePositiveMap(map[string]int{
		"segmenting.max_chars":    s.MaxChars,
		"segmenting.base_divisor": s.BaseDivisor,
		"segmenting.base_min":     s.BaseMin,
		"segmenting.base_max":     s.BaseMax,
		"segmenting.min_segments": s.MinSegments,
		"segmenting.max_segments": s.MaxSegments,
	}); err != nil {
		return err
	}
	if s.BaseMin > s.BaseMax {
		return errors.New("segmenting.base_min must not exceed segmenting.base_max")
	}
	if s.MinSegments > s.MaxSegments {
		return errors.New("segmenting.min_segments must not exceed segmenting.max_segments")
	}
	if s.Redundancy < 1 {
		return errors.New("segmenting.redundancy must be >= 1")
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	return ensurePositiveMap(map[string]int{
		"synthesis.workers":               c.Synthesis.Workers,
		"synthesis.drain_timeout_seconds": c.Synthesis.DrainTimeoutSeconds,
	})
}

func (c *Config) validateMerge() error {
	if c.Merge.ArticleSilenceMS < 0 {
		return errors.New("merge.article_silence_ms must be >= 0")
	}
	if c.Merge.ClipSilenceMS < 0 {
		return errors.New("merge.clip_silence_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateWordQueue() error {
	q := c.WordQueue
	if err := ensurePositiveMap(map[string]int{
		"word_queue.poll_interval":        q.PollInterval,
		"word_queue.error_retry_interval": q.ErrorRetryInterval,
		"word_queue.batch_size":           q.BatchSize,
		"word_queue.max_attempts":         q.MaxAttempts,
		"word_queue.stale_after":          q.StaleAfter,
		"word_queue.heartbeat_interval":   q.HeartbeatInterval,
	}); err != nil {
		return err
	}
	if q.StaleAfter <= q.HeartbeatInterval {
		return errors.New("word_queue.stale_after must be greater than word_queue.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.MinMergeSeconds < 0 {
		return errors.New("notifications.min_merge_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	for component, level := range c.Logging.ComponentOverrides {
		switch level {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.component_overrides.%s: unknown level %q", component, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var bad []string
	for _, key := range keys {
		if values[key] <= 0 {
			bad = append(bad, key)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%s must be positive", strings.Join(bad, ", "))
	}
	return nil
}
