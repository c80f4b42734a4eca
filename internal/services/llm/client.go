package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"splicer/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
	defaultTemperature    = 0.3
	maxSpeechBytes        = 64 << 20
)

// Config captures the runtime settings required to talk to the model API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	SpeechModel    string
	TimeoutSeconds int
}

// Client issues chat completions and speech synthesis requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	api        *openai.Client
	retry      services.RetryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retry.Attempts = attempts
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = baseDelay
		c.retry.MaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.retry.Sleeper = sleeper
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			SpeechModel:    strings.TrimSpace(cfg.SpeechModel),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry: services.RetryPolicy{
			Attempts:  defaultRetryAttempts,
			BaseDelay: defaultRetryBaseDelay,
			MaxDelay:  defaultRetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.Model == "" {
		client.cfg.Model = openai.GPT4oMini
	}
	if client.cfg.SpeechModel == "" {
		client.cfg.SpeechModel = string(openai.TTSModel1)
	}
	apiCfg := openai.DefaultConfig(client.cfg.APIKey)
	if client.cfg.BaseURL != "" {
		apiCfg.BaseURL = client.cfg.BaseURL
	}
	apiCfg.HTTPClient = client.httpClient
	client.api = openai.NewClientWithConfig(apiCfg)
	return client
}

// Model returns the chat model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete issues a chat completion with the supplied prompts and returns the
// trimmed assistant text. An empty completion is retried and then reported
// as ErrProviderIncomplete.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "system prompt required", nil)
	}
	if userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "user prompt required", nil)
	}
	var content string
	err := c.retry.Do(ctx, "llm complete", func(int) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Temperature: defaultTemperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return Classify("llm", err)
		}
		content, err = extractContent(resp)
		return err
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func extractContent(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", services.Wrap(services.ErrProviderIncomplete, "llm", "complete", "empty choices", nil)
	}
	choice := resp.Choices[0]
	if text := strings.TrimSpace(choice.Message.Content); text != "" {
		return text, nil
	}
	detail := fmt.Sprintf("empty content (finish_reason=%q", choice.FinishReason)
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		detail += fmt.Sprintf(", refusal=%q", refusal)
	}
	return "", services.Wrap(services.ErrProviderIncomplete, "llm", "complete", detail+")", nil)
}

// Speak synthesizes text with voice and returns the WAV bytes.
func (c *Client) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "llm", "speak", "text required", nil)
	}
	if strings.TrimSpace(voice) == "" {
		voice = string(openai.VoiceAlloy)
	}
	var audio []byte
	err := c.retry.Do(ctx, "llm speak", func(int) error {
		resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(c.cfg.SpeechModel),
			Input:          text,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormatWav,
		})
		if err != nil {
			return Classify("llm", err)
		}
		defer resp.Close()
		data, err := io.ReadAll(io.LimitReader(resp, maxSpeechBytes))
		if err != nil {
			return services.Wrap(services.ErrProviderUnavailable, "llm", "speak", "read audio", err)
		}
		if len(data) == 0 {
			return services.Wrap(services.ErrProviderIncomplete, "llm", "speak", "empty audio", nil)
		}
		audio = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// HealthCheck verifies the API key by fetching the configured model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "llm", "health", "api key not configured", nil)
	}
	if _, err := c.api.GetModel(ctx, c.cfg.Model); err != nil {
		return Classify("llm", err)
	}
	return nil
}

// Classify maps a go-openai error onto the services markers while keeping the
// original error in the chain.
func Classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errors.Join(services.ClassifyHTTP(stage, apiErr.HTTPStatusCode, nil), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errors.Join(services.ClassifyHTTP(stage, reqErr.HTTPStatusCode, nil), err)
	}
	return services.ClassifyHTTP(stage, 0, err)
}
