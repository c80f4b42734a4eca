package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"splicer/internal/services"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []any{map[string]any{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, slept *[]time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		Config{APIKey: "test", BaseURL: server.URL + "/v1", Model: "demo-model", SpeechModel: "demo-tts"},
		WithSleeper(func(d time.Duration) { *slept = append(*slept, d) }),
		WithRetryBackoff(time.Second, 10*time.Second),
	)
}

func TestCompleteSendsPrompts(t *testing.T) {
	var slept []time.Duration
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(chatReply("  Paris is the capital.  "))
	}, &slept)

	text, err := client.Complete(context.Background(), "be brief", "capital of France?")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "Paris is the capital." {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != "demo-model" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "capital of France?" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCompleteRetriesOnHTTP429(t *testing.T) {
	var slept []time.Duration
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited", "type": "rate_limit"}})
			return
		}
		_ = json.NewEncoder(w).Encode(chatReply("ok"))
	}, &slept)

	if _, err := client.Complete(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestCompleteEmptyContentIsIncomplete(t *testing.T) {
	var slept []time.Duration
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(chatReply(""))
	}, &slept)

	_, err := client.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, services.ErrProviderIncomplete) {
		t.Fatalf("expected ErrProviderIncomplete, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", slept)
	}
}

func TestCompleteDoesNotRetryAuthFailure(t *testing.T) {
	var slept []time.Duration
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad key", "type": "auth"}})
	}, &slept)

	_, err := client.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if calls != 1 || len(slept) != 0 {
		t.Fatalf("expected no retry, got %d calls and sleeps %v", calls, slept)
	}
}

func TestSpeakRequestsWAV(t *testing.T) {
	var slept []time.Duration
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFfake"))
	}, &slept)

	data, err := client.Speak(context.Background(), "hello there", "nova")
	if err != nil {
		t.Fatalf("Speak returned error: %v", err)
	}
	if string(data) != "RIFFfake" {
		t.Fatalf("unexpected audio %q", data)
	}
	if got["response_format"] != "wav" || got["voice"] != "nova" || got["model"] != "demo-tts" {
		t.Fatalf("unexpected speech request %v", got)
	}
}

func TestHealthCheckRequiresKey(t *testing.T) {
	client := NewClient(Config{})
	if err := client.HealthCheck(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
