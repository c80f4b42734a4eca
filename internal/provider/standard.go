package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/services/llm"
)

// StandardConfig configures the Whisper-backed provider.
type StandardConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Standard transcribes audio with the OpenAI transcription endpoint and word
// level timestamps. It does not clean audio.
type Standard struct {
	client *openai.Client
	model  string
	retry  services.RetryPolicy
}

// NewStandard constructs the standard provider.
func NewStandard(cfg StandardConfig) *Standard {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.TimeoutSeconds > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.Whisper1
	}
	return &Standard{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		retry:  services.RetryPolicy{Attempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay},
	}
}

// WithSleeper overrides retry sleeps (for testing).
func (s *Standard) WithSleeper(sleeper func(time.Duration)) *Standard {
	s.retry.Sleeper = sleeper
	return s
}

// Name implements Provider.
func (s *Standard) Name() Kind { return KindStandard }

// Transcribe implements Provider.
func (s *Standard) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "standard", "transcribe", "audio path is required", nil)
	}
	var resp openai.AudioResponse
	err := s.retry.Do(ctx, "standard transcribe", func(int) error {
		var callErr error
		resp, callErr = s.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    s.model,
			FilePath: req.AudioPath,
			Format:   openai.AudioResponseFormatVerboseJSON,
			Language: req.Language,
			TimestampGranularities: []openai.TranscriptionTimestampGranularity{
				openai.TranscriptionTimestampGranularityWord,
			},
		})
		return llm.Classify("standard", callErr)
	})
	if err != nil {
		return Result{}, err
	}

	words := make([]media.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, media.Word{Text: text, Start: w.Start, End: w.End})
	}
	if len(words) == 0 && strings.TrimSpace(resp.Text) != "" {
		return Result{}, services.Wrap(services.ErrProviderIncomplete, "standard", "transcribe", "response carried text but no word timestamps", nil)
	}
	return Result{
		Words:    words,
		Provider: KindStandard,
		Metadata: map[string]any{
			"model":    s.model,
			"language": resp.Language,
			"duration": resp.Duration,
		},
	}, nil
}

// TranscribeAndEnhance implements Provider. The standard provider has no
// cleaning capability.
func (s *Standard) TranscribeAndEnhance(context.Context, Request) (Result, error) {
	return Result{}, services.Wrap(services.ErrProviderUnavailable, "standard", "enhance", "standard provider cannot clean audio", nil)
}
