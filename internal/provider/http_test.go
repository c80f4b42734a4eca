package provider_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splicer/internal/provider"
	"splicer/internal/services"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0o644))
	return path
}

func TestEnhancedReturnsWordsAndCleanedAudio(t *testing.T) {
	cleaned := []byte("RIFF-cleaned")
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/transcriptions":
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "true", r.FormValue("enhance"))
			if _, header, err := r.FormFile("file"); assert.NoError(t, err) {
				assert.Equal(t, "episode.wav", header.Filename)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model": "enh-2",
				"words": []map[string]any{
					{"text": "hi", "start": 0.1, "end": 0.3, "confidence": 0.9, "speaker": "A"},
					{"text": " ", "start": 0.3, "end": 0.31},
				},
				"cleaned_audio_url": srv.URL + "/files/cleaned.wav",
			})
		case "/files/cleaned.wav":
			_, _ = w.Write(cleaned)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := provider.NewEnhanced(provider.EnhancedConfig{BaseURL: srv.URL, APIKey: "secret"})
	workDir := t.TempDir()
	result, err := p.TranscribeAndEnhance(context.Background(), provider.Request{AudioPath: writeAudio(t), WorkDir: workDir})
	require.NoError(t, err)
	require.Len(t, result.Words, 1)
	assert.Equal(t, "A", result.Words[0].Speaker)
	assert.True(t, result.Enhanced)
	assert.Equal(t, filepath.Join(workDir, "episode.cleaned.wav"), result.CleanedAudioPath)
	data, err := os.ReadFile(result.CleanedAudioPath)
	require.NoError(t, err)
	assert.Equal(t, cleaned, data)
}

func TestEnhancedEmptyTranscriptIsIncompleteButKeepsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"words":                []any{},
			"cleaned_audio_base64": base64.StdEncoding.EncodeToString([]byte("RIFF-inline")),
		})
	}))
	defer srv.Close()

	p := provider.NewEnhanced(provider.EnhancedConfig{BaseURL: srv.URL, MaxAttempts: 1})
	result, err := p.TranscribeAndEnhance(context.Background(), provider.Request{AudioPath: writeAudio(t), WorkDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrProviderIncomplete))
	require.NotEmpty(t, result.CleanedAudioPath)
	data, readErr := os.ReadFile(result.CleanedAudioPath)
	require.NoError(t, readErr)
	assert.Equal(t, "RIFF-inline", string(data))
}

func TestEnhancedRetriesUnavailableThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"words": []map[string]any{{"text": "ok", "start": 0, "end": 0.2}},
		})
	}))
	defer srv.Close()

	var slept []time.Duration
	p := provider.NewEnhanced(
		provider.EnhancedConfig{BaseURL: srv.URL, MaxAttempts: 3, RetryBaseDelay: 100 * time.Millisecond},
		provider.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	result, err := p.Transcribe(context.Background(), provider.Request{AudioPath: writeAudio(t)})
	require.NoError(t, err)
	assert.Len(t, result.Words, 1)
	assert.False(t, result.Enhanced)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept)
}

func TestEnhancedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := provider.NewEnhanced(provider.EnhancedConfig{BaseURL: srv.URL, MaxAttempts: 5}, provider.WithSleeper(func(time.Duration) {}))
	_, err := p.TranscribeAndEnhance(context.Background(), provider.Request{AudioPath: writeAudio(t)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConfiguration))
	assert.Equal(t, int32(1), calls.Load())
}

func TestStandardParsesWordTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "word", r.FormValue("timestamp_granularities[]"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "english",
			"duration": 1.2,
			"text":     "hello world",
			"words": []map[string]any{
				{"word": "hello", "start": 0.0, "end": 0.5},
				{"word": "world", "start": 0.6, "end": 1.1},
			},
		})
	}))
	defer srv.Close()

	p := provider.NewStandard(provider.StandardConfig{APIKey: "k", BaseURL: srv.URL + "/v1", MaxAttempts: 1})
	result, err := p.Transcribe(context.Background(), provider.Request{AudioPath: writeAudio(t)})
	require.NoError(t, err)
	require.Len(t, result.Words, 2)
	assert.Equal(t, "world", result.Words[1].Text)
	assert.Equal(t, 0.6, result.Words[1].Start)
	assert.Equal(t, provider.KindStandard, result.Provider)
	assert.Equal(t, "english", result.Metadata["language"])
}

func TestStandardCannotEnhance(t *testing.T) {
	p := provider.NewStandard(provider.StandardConfig{APIKey: "k"})
	_, err := p.TranscribeAndEnhance(context.Background(), provider.Request{AudioPath: "x.wav"})
	assert.True(t, errors.Is(err, services.ErrProviderUnavailable))
}
