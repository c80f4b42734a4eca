package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"splicer/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrChunkFailed, "chunk", "clean", "chunk 3 exhausted retries", base)
	if !errors.Is(err, services.ErrChunkFailed) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"chunk", "clean", "exhausted"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error string %q", fragment, err)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"incomplete", services.Wrap(services.ErrProviderIncomplete, "provider", "enhanced", "empty transcript", nil), true},
		{"unavailable", fmt.Errorf("dispatch: %w", services.ErrProviderUnavailable), true},
		{"transient", services.ErrTransient, true},
		{"not found", services.Wrap(services.ErrTranscriptNotFound, "store", "lookup", "", nil), false},
		{"validation", services.ErrValidation, false},
	}
	for _, tc := range tests {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestReasonIsHumanReadable(t *testing.T) {
	err := services.Wrap(services.ErrTranscriptNotFound, "assembly", "load transcript", "media item m-1", nil)
	got := services.Reason(err)
	if !strings.HasPrefix(got, "No transcript is available") {
		t.Fatalf("unexpected reason headline: %q", got)
	}
	if !strings.Contains(got, "media item m-1") {
		t.Fatalf("expected detail in reason: %q", got)
	}
	if services.Reason(services.ErrChunkFailed) != "Long-audio processing failed" {
		t.Fatalf("bare marker should render headline only, got %q", services.Reason(services.ErrChunkFailed))
	}
	if services.Reason(errors.New("disk full")) != "disk full" {
		t.Fatal("unclassified errors pass through")
	}
	if services.Reason(nil) != "" {
		t.Fatal("nil error has no reason")
	}
}
