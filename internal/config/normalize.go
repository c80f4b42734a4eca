package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeDetection()
	c.normalizeGeneration()
	c.normalizeCleanup()
	c.normalizeMixing()
	c.normalizeQueue()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SPLICER_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Paths.APIRateLimit < 0 {
		c.Paths.APIRateLimit = 0
	}
	if c.Paths.APIRateBurst <= 0 {
		c.Paths.APIRateBurst = defaultAPIRateBurst
	}
	return nil
}

func (c *Config) normalizeProviders() {
	p := &c.Providers
	p.OpenAIAPIKey = strings.TrimSpace(p.OpenAIAPIKey)
	if p.OpenAIAPIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			p.OpenAIAPIKey = strings.TrimSpace(value)
		}
	}
	p.EnhancedAPIKey = strings.TrimSpace(p.EnhancedAPIKey)
	if p.EnhancedAPIKey == "" {
		if value, ok := os.LookupEnv("SPLICER_ENHANCED_API_KEY"); ok {
			p.EnhancedAPIKey = strings.TrimSpace(value)
		}
	}
	p.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(p.OpenAIBaseURL), "/")
	if p.OpenAIBaseURL == "" {
		p.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	p.EnhancedURL = strings.TrimRight(strings.TrimSpace(p.EnhancedURL), "/")
	p.TranscriptionModel = strings.TrimSpace(p.TranscriptionModel)
	if p.TranscriptionModel == "" {
		p.TranscriptionModel = defaultTranscriptionModel
	}
	p.OperatorOverride = strings.ToLower(strings.TrimSpace(p.OperatorOverride))

	tiers := make(map[string]string, len(p.TierDefaults))
	for tier, kind := range p.TierDefaults {
		tiers[strings.ToLower(strings.TrimSpace(tier))] = strings.ToLower(strings.TrimSpace(kind))
	}
	p.TierDefaults = tiers
	fallbacks := make(map[string][]string, len(p.Fallbacks))
	for tier, chain := range p.Fallbacks {
		fallbacks[strings.ToLower(strings.TrimSpace(tier))] = normalizeList(chain)
	}
	p.Fallbacks = fallbacks

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultProviderMaxAttempts
	}
	if p.RetryBaseDelayMS <= 0 {
		p.RetryBaseDelayMS = defaultProviderRetryDelayMS
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultProviderTimeoutSeconds
	}
}

func (c *Config) normalizeDetection() {
	d := &c.Detection
	d.CutMarkers = normalizeList(d.CutMarkers)
	if len(d.CutMarkers) == 0 {
		d.CutMarkers = []string{"cut"}
	}
	d.InsertMarkers = normalizeList(d.InsertMarkers)
	if len(d.InsertMarkers) == 0 {
		d.InsertMarkers = []string{"insert"}
	}
	d.InsertTerminators = normalizeList(d.InsertTerminators)
	if len(d.InsertTerminators) == 0 {
		d.InsertTerminators = []string{TerminatorPunctuation, TerminatorTimeCap, TerminatorNextMarker}
	}
	if d.ContextWords < 0 {
		d.ContextWords = 0
	}
}

func (c *Config) normalizeGeneration() {
	g := &c.Generation
	g.APIKey = strings.TrimSpace(g.APIKey)
	if g.APIKey == "" {
		g.APIKey = c.Providers.OpenAIAPIKey
	}
	g.BaseURL = strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	if g.BaseURL == "" {
		g.BaseURL = c.Providers.OpenAIBaseURL
	}
	g.Model = strings.TrimSpace(g.Model)
	if g.Model == "" {
		g.Model = defaultGenerationModel
	}
	g.SpeechModel = strings.TrimSpace(g.SpeechModel)
	if g.SpeechModel == "" {
		g.SpeechModel = defaultSpeechModel
	}
	g.Voice = strings.TrimSpace(g.Voice)
	if g.Voice == "" {
		g.Voice = defaultVoice
	}
	g.FailPolicy = strings.ToLower(strings.TrimSpace(g.FailPolicy))
	if g.FailPolicy == "" {
		g.FailPolicy = defaultFailPolicy
	}
	if g.TimeoutSeconds <= 0 {
		g.TimeoutSeconds = defaultGenerationTimeout
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = defaultGenerationAttempts
	}
}

func (c *Config) normalizeCleanup() {
	c.Cleanup.FillerWords = normalizeList(c.Cleanup.FillerWords)
}

func (c *Config) normalizeMixing() {
	c.Mixing.Formats = normalizeList(c.Mixing.Formats)
	if len(c.Mixing.Formats) == 0 {
		c.Mixing.Formats = []string{"wav"}
	}
	if c.Mixing.SampleRate <= 0 {
		c.Mixing.SampleRate = defaultSampleRate
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.RedisAddr = strings.TrimSpace(c.Queue.RedisAddr)
	if c.Queue.RedisAddr == "" {
		if value, ok := os.LookupEnv("SPLICER_REDIS_ADDR"); ok {
			c.Queue.RedisAddr = strings.TrimSpace(value)
		}
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = defaultQueueConcurrency
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// normalizeList lower-cases, trims and de-duplicates while preserving order.
func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
