package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateMixing(); err != nil {
		return err
	}
	if err := c.validateBilling(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func validProviderKind(kind string) bool {
	return kind == ProviderStandard || kind == ProviderEnhanced
}

func (c *Config) validateProviders() error {
	p := c.Providers
	if p.OperatorOverride != "" && !validProviderKind(p.OperatorOverride) {
		return fmt.Errorf("providers.operator_override must be %q or %q", ProviderStandard, ProviderEnhanced)
	}
	for tier, kind := range p.TierDefaults {
		if !validProviderKind(kind) {
			return fmt.Errorf("providers.tier_defaults.%s: unknown provider %q", tier, kind)
		}
	}
	for tier, chain := range p.Fallbacks {
		if len(chain) == 0 {
			return fmt.Errorf("providers.fallbacks.%s must list at least one provider", tier)
		}
		for _, kind := range chain {
			if !validProviderKind(kind) {
				return fmt.Errorf("providers.fallbacks.%s: unknown provider %q", tier, kind)
			}
		}
	}
	return nil
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if d.CutLookbackSeconds < 0 {
		return errors.New("detection.cut_lookback_seconds must be >= 0")
	}
	if d.CutTrailingPadSeconds < 0 {
		return errors.New("detection.cut_trailing_pad_seconds must be >= 0")
	}
	for _, term := range d.InsertTerminators {
		switch term {
		case TerminatorPunctuation, TerminatorTimeCap, TerminatorNextMarker:
		default:
			return fmt.Errorf("detection.insert_terminators: unknown terminator %q", term)
		}
	}
	if slices.Contains(d.InsertTerminators, TerminatorTimeCap) && d.InsertMaxSeconds <= 0 {
		return errors.New("detection.insert_max_seconds must be positive when the time_cap terminator is enabled")
	}
	for _, marker := range d.CutMarkers {
		if slices.Contains(d.InsertMarkers, marker) {
			return fmt.Errorf("detection: marker %q cannot be both a cut and an insert marker", marker)
		}
	}
	return nil
}

func (c *Config) validateGeneration() error {
	g := c.Generation
	if g.FailPolicy != FailPolicyBlock && g.FailPolicy != FailPolicySkip {
		return fmt.Errorf("generation.fail_policy must be %q or %q", FailPolicyBlock, FailPolicySkip)
	}
	if g.MaxRegenerations < 0 {
		return errors.New("generation.max_regenerations must be >= 0")
	}
	if g.PrePadSeconds < 0 || g.PostPadSeconds < 0 {
		return errors.New("generation.pre_pad_seconds and generation.post_pad_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if c.Cleanup.CompressSilence && c.Cleanup.MaxSilenceSeconds <= 0 {
		return errors.New("cleanup.max_silence_seconds must be positive when cleanup.compress_silence is true")
	}
	if c.Cleanup.SilenceThresholdDB > 0 {
		return errors.New("cleanup.silence_threshold_db must be <= 0 dBFS")
	}
	return nil
}

func (c *Config) validateChunking() error {
	ch := c.Chunking
	if ch.ThresholdSeconds <= 0 {
		return errors.New("chunking.threshold_seconds must be positive")
	}
	if ch.TargetChunkSeconds <= 0 {
		return errors.New("chunking.target_chunk_seconds must be positive")
	}
	if ch.Workers <= 0 {
		return errors.New("chunking.workers must be positive")
	}
	if ch.MaxAttempts <= 0 {
		return errors.New("chunking.max_attempts must be positive")
	}
	return nil
}

func (c *Config) validateMixing() error {
	m := c.Mixing
	if m.TargetPeakDB > 0 {
		return errors.New("mixing.target_peak_db must be <= 0 dBFS")
	}
	if m.IntroOverlapSeconds < 0 {
		return errors.New("mixing.intro_overlap_seconds must be >= 0")
	}
	for _, format := range m.Formats {
		switch format {
		case "wav", "mp3", "m4a", "ogg", "flac":
		default:
			return fmt.Errorf("mixing.formats: unsupported format %q", format)
		}
	}
	return nil
}

func (c *Config) validateBilling() error {
	if c.Billing.EpisodeAmount < 0 {
		return errors.New("billing.episode_amount must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.processing_timeout":   c.Workflow.ProcessingTimeout,
		"workflow.poll_timeout":         c.Workflow.PollTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.PollTimeout >= c.Workflow.ProcessingTimeout {
		return errors.New("workflow.poll_timeout must be shorter than workflow.processing_timeout")
	}
	if c.Workflow.StagingRetentionHours < 0 {
		return errors.New("workflow.staging_retention_hours must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
