package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, executableName("present"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Command != present {
		t.Fatalf("expected resolved command %q, got %q", present, results[0].Command)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0] != "Missing" {
		t.Fatalf("Missing = %v, want [Missing]", missing)
	}
}

func TestFFmpegRequirement(t *testing.T) {
	cases := []struct {
		formats  []string
		optional bool
	}{
		{[]string{"wav"}, true},
		{[]string{"WAV", " wav "}, true},
		{[]string{"wav", "mp3"}, false},
		{nil, false},
	}
	for _, tc := range cases {
		req := FFmpegRequirement("ffmpeg", tc.formats)
		if req.Optional != tc.optional {
			t.Errorf("FFmpegRequirement(%v).Optional = %v, want %v", tc.formats, req.Optional, tc.optional)
		}
		if req.Command != "ffmpeg" || req.Name != "FFmpeg" {
			t.Errorf("unexpected requirement %#v", req)
		}
	}
}

func TestCheckFFmpegOnPath(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := CheckBinaries([]Requirement{FFmpegRequirement("ffmpeg", []string{"mp3"})})[0]
	if !status.Available {
		t.Fatalf("expected ffmpeg to resolve, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}

	t.Setenv("PATH", "")
	status = CheckBinaries([]Requirement{FFmpegRequirement("ffmpeg", []string{"mp3"})})[0]
	if status.Available || status.Detail == "" {
		t.Fatalf("expected ffmpeg to be unavailable, got %#v", status)
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
