package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"splicer/internal/logs"
)

func TestLogsPrintsTrailingLines(t *testing.T) {
	path := writeConfig(t, "")
	cfg := loadConfig(t, path)
	logPath := logs.CurrentPath(cfg.Paths.LogDir)
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", path, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNotifyTest(t *testing.T) {
	var title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
	}))
	defer srv.Close()

	path := writeConfig(t, "")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\n[notifications]\nntfy_topic = \"" + srv.URL + "/splicer\"\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	out, err := runCLI(t, "--config", path, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	if !strings.Contains(out, "Test notification sent") || title != "splicer - Test" {
		t.Fatalf("unexpected result %q title=%q", out, title)
	}

	bare := writeConfig(t, "")
	if _, err := runCLI(t, "--config", bare, "notify", "test"); err == nil {
		t.Fatal("expected an error without a topic")
	}
}
