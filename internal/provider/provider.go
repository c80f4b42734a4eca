package provider

import (
	"context"
	"strings"

	"splicer/internal/config"
	"splicer/internal/media"
)

// Kind names a transcription capability.
type Kind string

const (
	KindStandard Kind = config.ProviderStandard
	KindEnhanced Kind = config.ProviderEnhanced
)

// Valid reports whether k is a known capability.
func (k Kind) Valid() bool {
	return k == KindStandard || k == KindEnhanced
}

// Request describes one transcription job.
type Request struct {
	MediaItemID string
	AudioPath   string
	// WorkDir receives downloaded artifacts such as cleaned audio.
	WorkDir  string
	Language string
}

// Result is what a provider returns for a request.
type Result struct {
	Words []media.Word
	// CleanedAudioPath is set when the provider delivered cleaned audio.
	CleanedAudioPath string
	Provider         Kind
	Enhanced         bool
	Metadata         map[string]any
}

// Provider is a transcription vendor.
type Provider interface {
	Name() Kind
	Transcribe(ctx context.Context, req Request) (Result, error)
	TranscribeAndEnhance(ctx context.Context, req Request) (Result, error)
}

// Selection reasons recorded on the provider decision.
const (
	ReasonItemOverride     = "item_override"
	ReasonOperatorOverride = "operator_override"
	ReasonTierDefault      = "tier_default"
	ReasonFallbackDefault  = "default"
)

// ChooseProvider picks the capability for a request. Priority is the per-item
// override, then the operator override, then the tier default, then Standard.
// Unknown override values are ignored.
func ChooseProvider(tier, perItemOverride, operatorOverride string, tierDefaults map[string]string) (Kind, string) {
	if k := Kind(strings.ToLower(strings.TrimSpace(perItemOverride))); k.Valid() {
		return k, ReasonItemOverride
	}
	if k := Kind(strings.ToLower(strings.TrimSpace(operatorOverride))); k.Valid() {
		return k, ReasonOperatorOverride
	}
	if k := Kind(tierDefaults[strings.ToLower(strings.TrimSpace(tier))]); k.Valid() {
		return k, ReasonTierDefault
	}
	return KindStandard, ReasonFallbackDefault
}

// Steps returns the ordered providers to try for a tier after choosing
// chosen. The tier's fallback chain is followed from chosen's position;
// when chosen is not in the chain, Standard is the only fallback.
func Steps(chosen Kind, tier string, fallbacks map[string][]string) []Kind {
	chain := fallbacks[strings.ToLower(strings.TrimSpace(tier))]
	for i, k := range chain {
		if Kind(k) != chosen {
			continue
		}
		out := make([]Kind, 0, len(chain)-i)
		for _, next := range chain[i:] {
			out = append(out, Kind(next))
		}
		return out
	}
	if chosen == KindStandard {
		return []Kind{KindStandard}
	}
	return []Kind{chosen, KindStandard}
}
