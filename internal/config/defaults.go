package config

const (
	defaultConfigLocation        = "~/.config/narrator/config.toml"
	defaultDataDir               = "~/.local/share/narrator"
	defaultSessionDir            = "~/.local/share/narrator/sessions"
	defaultArtifactDir           = "~/.local/share/narrator/artifacts"
	defaultWordAudioDir          = "~/.local/share/narrator/words"
	defaultLogDir                = "~/.local/share/narrator/logs"
	defaultLogRetentionDays      = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultAPIBind               = "127.0.0.1:7490"
	defaultTTSBaseURL            = "https://api.openai.com/v1"
	defaultTTSModel              = "tts-1"
	defaultTTSVoice              = "nova"
	defaultTTSFormat             = "mp3"
	defaultTTSSpeed              = 1.0
	defaultConnectTimeoutSeconds = 10
	defaultReadTimeoutSeconds    = 60
	defaultTTSMaxAttempts        = 3
	defaultMaxChars              = 2200
	defaultBaseDivisor           = 1800
	defaultBaseMin               = 2
	defaultBaseMax               = 8
	defaultRedundancy            = 1.4
	defaultMinSegments           = 3
	defaultMaxSegments           = 12
	defaultSynthesisWorkers      = 3
	defaultDrainTimeoutSeconds   = 120
	defaultArticleSilenceMS      = 800
	defaultClipSilenceMS         = 1000
	defaultQueuePollInterval     = 10
	defaultQueueErrorRetry       = 30
	defaultQueueBatchSize        = 5
	defaultQueueMaxAttempts      = 3
	defaultQueueTaskSpacingMS    = 500
	defaultQueueStaleAfter       = 1800
	defaultQueueHeartbeat        = 15
	defaultEventsSubjectPrefix   = "narrator"
	defaultEventsClientName      = "narrator"
	defaultTelemetryServiceName  = "narrator"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			SessionDir:   defaultSessionDir,
			ArtifactDir:  defaultArtifactDir,
			WordAudioDir: defaultWordAudioDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		TTS: TTS{
			BaseURL:               defaultTTSBaseURL,
			Model:                 defaultTTSModel,
			Voice:                 defaultTTSVoice,
			ResponseFormat:        defaultTTSFormat,
			Speed:                 defaultTTSSpeed,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			ReadTimeoutSeconds:    defaultReadTimeoutSeconds,
			MaxAttempts:           defaultTTSMaxAttempts,
		},
		Segmenting: Segmenting{
			MaxChars:    defaultMaxChars,
			BaseDivisor: defaultBaseDivisor,
			BaseMin:     defaultBaseMin,
			BaseMax:     defaultBaseMax,
			Redundancy:  defaultRedundancy,
			MinSegments: defaultMinSegments,
			MaxSegments: defaultMaxSegments,
		},
		Synthesis: Synthesis{
			Workers:             defaultSynthesisWorkers,
			ResumeOnStart:       true,
			DrainTimeoutSeconds: defaultDrainTimeoutSeconds,
		},
		Merge: Merge{
			ArticleSilenceMS: defaultArticleSilenceMS,
			ClipSilenceMS:    defaultClipSilenceMS,
		},
		WordQueue: WordQueue{
			PollInterval:       defaultQueuePollInterval,
			ErrorRetryInterval: defaultQueueErrorRetry,
			BatchSize:          defaultQueueBatchSize,
			MaxAttempts:        defaultQueueMaxAttempts,
			TaskSpacingMS:      defaultQueueTaskSpacingMS,
			StaleAfter:         defaultQueueStaleAfter,
			HeartbeatInterval:  defaultQueueHeartbeat,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			SessionMerged:  true,
			WordExhausted:  true,
			Errors:         true,
		},
		Events: Events{
			SubjectPrefix: defaultEventsSubjectPrefix,
			ClientName:    defaultEventsClientName,
		},
		Telemetry: Telemetry{
			Metrics:     true,
			ServiceName: defaultTelemetryServiceName,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
