package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"narrator/internal/config"
	"narrator/internal/services"
)

var _ Synthesizer = (*Client)(nil)

// Client implements Synthesizer against an OpenAI-compatible speech endpoint.
type Client struct {
	client openai.Client
	model  string
	voice  string
	format string
	speed  float64
}

type clientConfig struct {
	baseURL        string
	model          string
	voice          string
	format         string
	speed          float64
	connectTimeout time.Duration
	readTimeout    time.Duration
}

// Option configures a Client.
type Option func(*clientConfig)

// WithBaseURL overrides the API base URL (for example a compatible proxy).
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithModel selects the speech model.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// WithVoice selects the default voice used when a request leaves it empty.
func WithVoice(voice string) Option {
	return func(c *clientConfig) { c.voice = voice }
}

// WithFormat selects the default audio format.
func WithFormat(format string) Option {
	return func(c *clientConfig) { c.format = format }
}

// WithSpeed sets the playback speed multiplier.
func WithSpeed(speed float64) Option {
	return func(c *clientConfig) { c.speed = speed }
}

// WithTimeouts sets independent connect and read timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *clientConfig) {
		c.connectTimeout = connect
		c.readTimeout = read
	}
}

// New constructs a Client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "new client", "api key must not be empty", nil)
	}
	cfg := &clientConfig{
		model:          "tts-1",
		voice:          "nova",
		format:         "mp3",
		speed:          1.0,
		connectTimeout: 10 * time.Second,
		readTimeout:    60 * time.Second,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(newHTTPClient(cfg.connectTimeout, cfg.readTimeout)),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(cfg.baseURL, "/")+"/"))
	}

	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
		format: cfg.format,
		speed:  cfg.speed,
	}, nil
}

// NewFromConfig constructs a Client from the [tts] section.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "new client", "config is nil", nil)
	}
	return New(cfg.TTS.APIKey,
		WithBaseURL(cfg.TTS.BaseURL),
		WithModel(cfg.TTS.Model),
		WithVoice(cfg.TTS.Voice),
		WithFormat(cfg.TTS.ResponseFormat),
		WithSpeed(cfg.TTS.Speed),
		WithTimeouts(cfg.ConnectTimeout(), cfg.ReadTimeout()),
	)
}

// Format returns the default audio format of the client.
func (c *Client) Format() string { return c.format }

// Synthesize implements Synthesizer.
func (c *Client) Synthesize(ctx context.Context, req Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, services.Wrap(services.ErrClientRejected, "tts", "speech", "input text is empty", nil)
	}
	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	format := req.Format
	if format == "" {
		format = c.format
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(c.model),
		Input:          req.Text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	}
	if c.speed > 0 && c.speed != 1.0 {
		params.Speed = openai.Float(c.speed)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, Classify("speech", err)
	}
	if resp == nil || resp.Body == nil {
		return nil, services.Wrap(services.ErrEmptyResult, "tts", "speech", "response has no body", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, Classify("speech", &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))})
	}
	return &classifyingBody{ReadCloser: resp.Body}, nil
}

// classifyingBody tags read failures so the caller's retry policy sees a
// stalled stream the same way as a failed connect.
type classifyingBody struct {
	io.ReadCloser
}

func (b *classifyingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, Classify("read body", err)
	}
	return n, err
}
