package preflight

import (
	"context"

	"splicer/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Media directory", cfg.MediaDir()),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	// Inserts fail without a generation key, so a missing one is reported.
	results = append(results, CheckLLM(ctx, "Generation API", GenerationLLM(cfg)))

	if cfg.Providers.OpenAIAPIKey != "" && transcriptionUsesDistinctLLM(cfg) {
		results = append(results, CheckLLM(ctx, "Transcription API", TranscriptionLLM(cfg)))
	}

	if cfg.Providers.EnhancedURL != "" {
		results = append(results, CheckEnhanced(ctx, cfg.Providers.EnhancedURL, cfg.Providers.EnhancedAPIKey))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// transcriptionUsesDistinctLLM reports whether the standard transcription
// provider talks to a different account or endpoint than generation.
func transcriptionUsesDistinctLLM(cfg *config.Config) bool {
	gen := GenerationLLM(cfg)
	tr := TranscriptionLLM(cfg)
	return gen.APIKey != tr.APIKey || gen.BaseURL != tr.BaseURL
}
