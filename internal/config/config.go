package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
	// APIRateLimit is the sustained POST rate per client in requests per
	// second; zero disables limiting.
	APIRateLimit float64 `toml:"api_rate_limit"`
	APIRateBurst int     `toml:"api_rate_burst"`
}

// Providers contains transcription provider settings and routing policy.
type Providers struct {
	OpenAIAPIKey       string              `toml:"openai_api_key"`
	OpenAIBaseURL      string              `toml:"openai_base_url"`
	TranscriptionModel string              `toml:"transcription_model"`
	EnhancedURL        string              `toml:"enhanced_url"`
	EnhancedAPIKey     string              `toml:"enhanced_api_key"`
	OperatorOverride   string              `toml:"operator_override"`
	TierDefaults       map[string]string   `toml:"tier_defaults"`
	Fallbacks          map[string][]string `toml:"fallbacks"`
	MaxAttempts        int                 `toml:"max_attempts"`
	RetryBaseDelayMS   int                 `toml:"retry_base_delay_ms"`
	TimeoutSeconds     int                 `toml:"timeout_seconds"`
}

// Detection controls how spoken markers become commands.
type Detection struct {
	CutMarkers            []string `toml:"cut_markers"`
	InsertMarkers         []string `toml:"insert_markers"`
	CutLookbackSeconds    float64  `toml:"cut_lookback_seconds"`
	CutTrailingPadSeconds float64  `toml:"cut_trailing_pad_seconds"`
	// InsertTerminators lists the rules that end a spoken insert request:
	// "punctuation", "time_cap" and "next_marker".
	InsertTerminators []string `toml:"insert_terminators"`
	InsertMaxSeconds  float64  `toml:"insert_max_seconds"`
	ContextWords      int      `toml:"context_words"`
}

// Generation contains AI response generation settings.
type Generation struct {
	APIKey           string  `toml:"api_key"`
	BaseURL          string  `toml:"base_url"`
	Model            string  `toml:"model"`
	SpeechModel      string  `toml:"speech_model"`
	Voice            string  `toml:"voice"`
	MaxRegenerations int     `toml:"max_regenerations"`
	FailPolicy       string  `toml:"fail_policy"`
	PrePadSeconds    float64 `toml:"pre_pad_seconds"`
	PostPadSeconds   float64 `toml:"post_pad_seconds"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	MaxAttempts      int     `toml:"max_attempts"`
}

// Cleanup contains filler and silence removal settings.
type Cleanup struct {
	RemoveFillers      bool     `toml:"remove_fillers"`
	FillerWords        []string `toml:"filler_words"`
	CompressSilence    bool     `toml:"compress_silence"`
	MaxSilenceSeconds  float64  `toml:"max_silence_seconds"`
	SilenceThresholdDB float64  `toml:"silence_threshold_db"`
}

// Chunking controls the long-audio path.
type Chunking struct {
	ThresholdSeconds   float64 `toml:"threshold_seconds"`
	TargetChunkSeconds float64 `toml:"target_chunk_seconds"`
	Workers            int     `toml:"workers"`
	MaxAttempts        int     `toml:"max_attempts"`
}

// Mixing contains template mixing and export settings.
type Mixing struct {
	TargetPeakDB        float64  `toml:"target_peak_db"`
	MusicGainDB         float64  `toml:"music_gain_db"`
	DuckGainDB          float64  `toml:"duck_gain_db"`
	IntroOverlapSeconds float64  `toml:"intro_overlap_seconds"`
	Formats             []string `toml:"formats"`
	SampleRate          int      `toml:"sample_rate"`
}

// Billing contains ledger settings.
type Billing struct {
	EpisodeAmount   int64 `toml:"episode_amount"`
	RefundOnFailure bool  `toml:"refund_on_failure"`
}

// Workflow contains daemon timing and concurrency settings.
type Workflow struct {
	Workers            int  `toml:"workers"`
	QueuePollInterval  int  `toml:"queue_poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	HeartbeatInterval  int  `toml:"heartbeat_interval"`
	HeartbeatTimeout   int  `toml:"heartbeat_timeout"`
	ProcessingTimeout  int  `toml:"processing_timeout"`
	PollTimeout        int  `toml:"poll_timeout"`
	KeepSourceMedia    bool `toml:"keep_source_media"`
	// StagingRetentionHours is how long failed attempt directories are kept
	// before the daemon sweeps them. Zero keeps them forever.
	StagingRetentionHours int `toml:"staging_retention_hours"`
}

// Queue contains the asynq connection used for asynchronous transcription.
type Queue struct {
	RedisAddr   string `toml:"redis_addr"`
	Concurrency int    `toml:"concurrency"`
}

// Notifications configures ntfy delivery of episode events.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for splicer.
//
// Configuration sections by subsystem:
//   - Paths: data, staging and log directories plus the API bind address
//   - Providers: transcription vendors and tier routing
//   - Detection: cut/insert marker vocabulary and default windows
//   - Generation: LLM + speech synthesis for insert commands
//   - Cleanup: filler and silence removal
//   - Chunking: long-audio split/reassemble
//   - Mixing: template mixing, normalisation and export formats
//   - Billing: ledger amount and refund policy
//   - Workflow: worker count, polling, heartbeats and timeouts
//   - Queue: asynq/redis for async transcription
//   - Notifications: ntfy topic for episode events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Providers     Providers     `toml:"providers"`
	Detection     Detection     `toml:"detection"`
	Generation    Generation    `toml:"generation"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Chunking      Chunking      `toml:"chunking"`
	Mixing        Mixing        `toml:"mixing"`
	Billing       Billing       `toml:"billing"`
	Workflow      Workflow      `toml:"workflow"`
	Queue         Queue         `toml:"queue"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/splicer/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	// A missing .env file is normal; only parse errors matter.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("splicer.toml")
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
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir, c.MediaDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "splicer.db")
}

// MediaDir returns the root of the local media object store.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Paths.DataDir, "media")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "splicer.lock")
}

// FFmpegBinary returns the ffmpeg executable name used for format conversion.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
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
