package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers classify failures across the assembly pipeline. Callers test with
// errors.Is; Wrap keeps both the marker and the underlying cause in the chain.
var (
	ErrTranscriptNotFound      = errors.New("transcript not found")
	ErrProviderIncomplete      = errors.New("provider returned incomplete artifacts")
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrCommandGenerationFailed = errors.New("command generation failed")
	ErrChunkFailed             = errors.New("chunk processing failed")
	ErrBillingConflict         = errors.New("billing conflict")
	ErrAssemblyFatal           = errors.New("assembly failed")
	ErrValidation              = errors.New("validation error")
	ErrConfiguration           = errors.New("configuration error")
	ErrNotFound                = errors.New("not found")
	ErrTransient               = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether bounded backoff applies to err.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrProviderIncomplete) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrTransient)
}

var reasonLabels = []struct {
	marker error
	label  string
}{
	{ErrTranscriptNotFound, "No transcript is available for the episode audio"},
	{ErrCommandGenerationFailed, "An AI insert could not be generated"},
	{ErrChunkFailed, "Long-audio processing failed"},
	{ErrProviderIncomplete, "A provider returned incomplete results"},
	{ErrProviderUnavailable, "A provider is unavailable"},
	{ErrValidation, "The submitted commands are invalid"},
	{ErrConfiguration, "The server is misconfigured"},
	{ErrNotFound, "A required record was not found"},
	{ErrAssemblyFatal, "Assembly failed"},
	{ErrTransient, "A temporary failure interrupted assembly"},
}

// Reason renders err as the human-readable message persisted on a failed
// episode. The first matching marker supplies a stable headline; stage
// markers rank above the provider markers they may wrap.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, entry := range reasonLabels {
		if !errors.Is(err, entry.marker) {
			continue
		}
		detail := strings.TrimPrefix(msg, entry.marker.Error()+": ")
		if detail == "" || msg == entry.marker.Error() {
			return entry.label
		}
		return entry.label + " (" + detail + ")"
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
