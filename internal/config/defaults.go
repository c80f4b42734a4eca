package config

const (
	defaultDataDir                = "~/.local/share/splicer"
	defaultStagingDir             = "~/.local/share/splicer/staging"
	defaultLogDir                 = "~/.local/share/splicer/logs"
	defaultAPIBind                = "127.0.0.1:7587"
	defaultAPIRateLimit           = 5
	defaultAPIRateBurst           = 10
	defaultOpenAIBaseURL          = "https://api.openai.com/v1"
	defaultTranscriptionModel     = "whisper-1"
	defaultProviderMaxAttempts    = 3
	defaultProviderRetryDelayMS   = 500
	defaultProviderTimeoutSeconds = 600
	defaultGenerationModel        = "gpt-4o-mini"
	defaultSpeechModel            = "tts-1"
	defaultVoice                  = "alloy"
	defaultMaxRegenerations       = 3
	defaultFailPolicy             = FailPolicyBlock
	defaultGenerationTimeout      = 60
	defaultGenerationAttempts     = 3
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultWorkflowWorkers        = 2
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultProcessingTimeout      = 3 * 60 * 60
	defaultPollTimeout            = 30
	defaultQueueConcurrency       = 4
	defaultChunkThresholdSeconds  = 900
	defaultChunkTargetSeconds     = 300
	defaultChunkWorkers           = 4
	defaultChunkAttempts          = 3
	defaultSampleRate             = 44100
	defaultStagingRetentionHours  = 72
	defaultNtfyTimeout            = 10
)

// Fail policies for insert commands whose generation failed.
const (
	FailPolicyBlock = "block"
	FailPolicySkip  = "skip"
)

// Insert terminator rules.
const (
	TerminatorPunctuation = "punctuation"
	TerminatorTimeCap     = "time_cap"
	TerminatorNextMarker  = "next_marker"
)

// Provider tiers and kinds used by the routing tables.
const (
	ProviderStandard = "standard"
	ProviderEnhanced = "enhanced"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
			APIRateLimit: defaultAPIRateLimit,
			APIRateBurst: defaultAPIRateBurst,
		},
		Providers: Providers{
			OpenAIBaseURL:      defaultOpenAIBaseURL,
			TranscriptionModel: defaultTranscriptionModel,
			TierDefaults: map[string]string{
				"free": ProviderStandard,
				"pro":  ProviderEnhanced,
			},
			Fallbacks: map[string][]string{
				"free": {ProviderStandard},
				"pro":  {ProviderEnhanced, ProviderStandard},
			},
			MaxAttempts:      defaultProviderMaxAttempts,
			RetryBaseDelayMS: defaultProviderRetryDelayMS,
			TimeoutSeconds:   defaultProviderTimeoutSeconds,
		},
		Detection: Detection{
			CutMarkers:            []string{"cut"},
			InsertMarkers:         []string{"insert"},
			CutLookbackSeconds:    5,
			CutTrailingPadSeconds: 0.2,
			InsertTerminators:     []string{TerminatorPunctuation, TerminatorTimeCap, TerminatorNextMarker},
			InsertMaxSeconds:      15,
			ContextWords:          20,
		},
		Generation: Generation{
			BaseURL:          defaultOpenAIBaseURL,
			Model:            defaultGenerationModel,
			SpeechModel:      defaultSpeechModel,
			Voice:            defaultVoice,
			MaxRegenerations: defaultMaxRegenerations,
			FailPolicy:       defaultFailPolicy,
			PrePadSeconds:    0.3,
			PostPadSeconds:   0.3,
			TimeoutSeconds:   defaultGenerationTimeout,
			MaxAttempts:      defaultGenerationAttempts,
		},
		Cleanup: Cleanup{
			RemoveFillers:      true,
			FillerWords:        []string{"um", "uh", "erm", "hmm", "uhm"},
			CompressSilence:    true,
			MaxSilenceSeconds:  1.0,
			SilenceThresholdDB: -40,
		},
		Chunking: Chunking{
			ThresholdSeconds:   defaultChunkThresholdSeconds,
			TargetChunkSeconds: defaultChunkTargetSeconds,
			Workers:            defaultChunkWorkers,
			MaxAttempts:        defaultChunkAttempts,
		},
		Mixing: Mixing{
			TargetPeakDB:        -1,
			MusicGainDB:         -18,
			DuckGainDB:          -30,
			IntroOverlapSeconds: 0,
			Formats:             []string{"wav"},
			SampleRate:          defaultSampleRate,
		},
		Billing: Billing{
			EpisodeAmount: 1,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ProcessingTimeout:  defaultProcessingTimeout,
			PollTimeout:        defaultPollTimeout,

			StagingRetentionHours: defaultStagingRetentionHours,
		},
		Queue: Queue{
			Concurrency: defaultQueueConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
