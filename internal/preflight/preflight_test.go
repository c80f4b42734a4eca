package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"splicer/internal/config"
	"splicer/internal/services/llm"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEnhanced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cases := []struct {
		name string
		url  string
		key  string
		pass bool
	}{
		{"ok", srv.URL, "good-key", true},
		{"trailing slash", srv.URL + "/", "good-key", true},
		{"bad key", srv.URL, "bad-key", false},
		{"missing url", "", "good-key", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := CheckEnhanced(context.Background(), tc.url, tc.key)
			if result.Passed != tc.pass {
				t.Fatalf("Passed = %v, want %v (%s)", result.Passed, tc.pass, result.Detail)
			}
		})
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"gpt-4o-mini","object":"model","owned_by":"test"}`))
	}))
	defer srv.Close()

	ok := CheckLLM(context.Background(), "Generation API", llm.Config{APIKey: "good-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	if !ok.Passed {
		t.Fatalf("expected pass, got: %s", ok.Detail)
	}
	bad := CheckLLM(context.Background(), "Generation API", llm.Config{APIKey: "bad-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	if bad.Passed {
		t.Fatal("expected failure for a rejected key")
	}
	missing := CheckLLM(context.Background(), "Generation API", llm.Config{BaseURL: srv.URL})
	if missing.Passed || missing.Detail != "API key missing" {
		t.Fatalf("unexpected result without key: %#v", missing)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Providers.OpenAIAPIKey = ""
	cfg.Providers.EnhancedURL = ""
	cfg.Generation.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testConfig(t)

	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 4 directory checks plus generation, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Generation API" {
		t.Fatalf("expected only the keyless generation check to fail, got %#v", failed)
	}
}

func TestRunAll_IncludesEnhancedWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Providers.EnhancedURL = srv.URL

	found := false
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "Enhanced transcription" {
			found = true
			if !r.Passed {
				t.Errorf("enhanced check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected enhanced check in results")
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mixing.Formats = []string{"wav"}
	t.Setenv("PATH", "")

	statuses := CheckSystemDeps(cfg)
	if len(statuses) != 1 {
		t.Fatalf("expected one dependency, got %d", len(statuses))
	}
	if statuses[0].Available || !statuses[0].Optional {
		t.Fatalf("expected optional, unavailable ffmpeg; got %#v", statuses[0])
	}
}
