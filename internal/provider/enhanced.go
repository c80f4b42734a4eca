package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"splicer/internal/media"
	"splicer/internal/services"
)

const defaultEnhancedTimeout = 10 * time.Minute

// EnhancedConfig configures the HTTP vendor that returns a transcript together
// with cleaned audio.
type EnhancedConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Enhanced talks to the enhanced transcription vendor.
type Enhanced struct {
	cfg        EnhancedConfig
	httpClient *http.Client
	retry      services.RetryPolicy
}

// EnhancedOption customizes the enhanced provider.
type EnhancedOption func(*Enhanced)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) EnhancedOption {
	return func(e *Enhanced) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) EnhancedOption {
	return func(e *Enhanced) {
		e.retry.Sleeper = sleeper
	}
}

// NewEnhanced constructs the enhanced provider.
func NewEnhanced(cfg EnhancedConfig, opts ...EnhancedOption) *Enhanced {
	timeout := defaultEnhancedTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	e := &Enhanced{
		cfg: EnhancedConfig{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry:      services.RetryPolicy{Attempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Provider.
func (e *Enhanced) Name() Kind { return KindEnhanced }

// Transcribe implements Provider by requesting a transcript without cleaning.
func (e *Enhanced) Transcribe(ctx context.Context, req Request) (Result, error) {
	return e.run(ctx, req, false)
}

// TranscribeAndEnhance implements Provider. When the vendor cleans the audio
// but returns no words, the result still carries the cleaned audio and the
// error wraps services.ErrProviderIncomplete.
func (e *Enhanced) TranscribeAndEnhance(ctx context.Context, req Request) (Result, error) {
	return e.run(ctx, req, true)
}

type enhancedWord struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker"`
}

type enhancedResponse struct {
	Words           []enhancedWord `json:"words"`
	CleanedAudioURL string         `json:"cleaned_audio_url"`
	CleanedAudioB64 string         `json:"cleaned_audio_base64"`
	Model           string         `json:"model"`
	Error           *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *Enhanced) run(ctx context.Context, req Request, enhance bool) (Result, error) {
	if e.cfg.BaseURL == "" {
		return Result{}, services.Wrap(services.ErrProviderUnavailable, "enhanced", "transcribe", "enhanced provider url not configured", nil)
	}
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "enhanced", "transcribe", "audio path is required", nil)
	}

	var parsed enhancedResponse
	err := e.retry.Do(ctx, "enhanced transcribe", func(int) error {
		var callErr error
		parsed, callErr = e.sendOnce(ctx, req, enhance)
		return callErr
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Provider: KindEnhanced,
		Metadata: map[string]any{"model": parsed.Model, "enhanced": enhance},
	}
	for _, w := range parsed.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		result.Words = append(result.Words, media.Word{
			Text:       text,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		})
	}

	if enhance {
		path, err := e.fetchCleaned(ctx, req, parsed)
		if err != nil {
			return Result{}, err
		}
		result.CleanedAudioPath = path
		result.Enhanced = path != ""
	}

	if len(result.Words) == 0 {
		return result, services.Wrap(services.ErrProviderIncomplete, "enhanced", "transcribe", "empty transcript", nil)
	}
	if enhance && !result.Enhanced {
		return result, services.Wrap(services.ErrProviderIncomplete, "enhanced", "transcribe", "cleaned audio missing", nil)
	}
	return result, nil
}

func (e *Enhanced) sendOnce(ctx context.Context, req Request, enhance bool) (enhancedResponse, error) {
	var parsed enhancedResponse

	f, err := os.Open(req.AudioPath)
	if err != nil {
		return parsed, services.Wrap(services.ErrValidation, "enhanced", "open audio", req.AudioPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return parsed, fmt.Errorf("enhanced request: build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return parsed, fmt.Errorf("enhanced request: copy audio: %w", err)
	}
	_ = form.WriteField("enhance", fmt.Sprintf("%t", enhance))
	_ = form.WriteField("timestamps", "word")
	if req.Language != "" {
		_ = form.WriteField("language", req.Language)
	}
	if err := form.Close(); err != nil {
		return parsed, fmt.Errorf("enhanced request: close form: %w", err)
	}

	endpoint, err := url.JoinPath(e.cfg.BaseURL, "v1", "transcriptions")
	if err != nil {
		return parsed, fmt.Errorf("enhanced request: build url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return parsed, fmt.Errorf("enhanced request: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return parsed, services.ClassifyHTTP("enhanced", 0, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return parsed, services.Wrap(services.ErrProviderUnavailable, "enhanced", "read body", "", err)
	}
	if classified := services.ClassifyHTTP("enhanced", resp.StatusCode, nil); classified != nil {
		return parsed, fmt.Errorf("%w: %s", classified, summarize(payload))
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return parsed, services.Wrap(services.ErrProviderIncomplete, "enhanced", "decode response", summarize(payload), err)
	}
	if parsed.Error != nil {
		return parsed, services.Wrap(services.ErrProviderUnavailable, "enhanced", "api error", parsed.Error.Message, nil)
	}
	return parsed, nil
}

// fetchCleaned stores the cleaned audio delivered inline or by URL in the
// request's work dir.
func (e *Enhanced) fetchCleaned(ctx context.Context, req Request, parsed enhancedResponse) (string, error) {
	if parsed.CleanedAudioB64 == "" && parsed.CleanedAudioURL == "" {
		return "", nil
	}
	workDir := req.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(req.AudioPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("enhanced: create work dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	target := filepath.Join(workDir, base+".cleaned.wav")

	if parsed.CleanedAudioB64 != "" {
		data, err := base64.StdEncoding.DecodeString(parsed.CleanedAudioB64)
		if err != nil {
			return "", services.Wrap(services.ErrProviderIncomplete, "enhanced", "decode cleaned audio", "", err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return "", fmt.Errorf("enhanced: write cleaned audio: %w", err)
		}
		return target, nil
	}

	err := e.retry.Do(ctx, "enhanced download", func(int) error {
		return e.download(ctx, parsed.CleanedAudioURL, target)
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func (e *Enhanced) download(ctx context.Context, rawURL, target string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return services.Wrap(services.ErrProviderIncomplete, "enhanced", "download", "bad cleaned audio url", err)
	}
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return services.ClassifyHTTP("enhanced", 0, err)
	}
	defer resp.Body.Close()
	if classified := services.ClassifyHTTP("enhanced", resp.StatusCode, nil); classified != nil {
		return classified
	}
	tmp := target + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("enhanced: create %s: %w", filepath.Base(tmp), err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrProviderUnavailable, "enhanced", "download", "", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

func summarize(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
