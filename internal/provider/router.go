package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
)

// Policy is the routing data: tier defaults, the operator override and the
// per-tier fallback table.
type Policy struct {
	TierDefaults     map[string]string
	Fallbacks        map[string][]string
	OperatorOverride string
}

// Router runs a transcription request through the strategy chosen for its
// tier.
type Router struct {
	providers map[Kind]Provider
	policy    Policy
	logger    *slog.Logger
}

// NewRouter constructs a router over the given providers.
func NewRouter(policy Policy, logger *slog.Logger, providers ...Provider) *Router {
	byKind := make(map[Kind]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			byKind[p.Name()] = p
		}
	}
	return &Router{
		providers: byKind,
		policy:    policy,
		logger:    logging.NewComponentLogger(logger, "provider"),
	}
}

// Choose applies ChooseProvider with the router's policy.
func (r *Router) Choose(tier, perItemOverride string) (Kind, string) {
	return ChooseProvider(tier, perItemOverride, r.policy.OperatorOverride, r.policy.TierDefaults)
}

// Route transcribes req and returns the result together with the decision to
// record on the media item. Steps run in fallback-table order; once an
// Enhanced step fails, later steps are recorded as degraded.
func (r *Router) Route(ctx context.Context, tier, perItemOverride string, req Request) (Result, media.ProviderDecision, error) {
	chosen, reason := r.Choose(tier, perItemOverride)
	steps := Steps(chosen, tier, r.policy.Fallbacks)

	decision := media.ProviderDecision{Reason: reason}
	var (
		failures []string
		salvaged string
		lastErr  error
	)
	for i, kind := range steps {
		p, ok := r.providers[kind]
		if !ok {
			lastErr = services.Wrap(services.ErrProviderUnavailable, "provider", "route", fmt.Sprintf("%s provider not configured", kind), nil)
			failures = append(failures, lastErr.Error())
			continue
		}

		stepReq := req
		if salvaged != "" {
			// Cleaned audio from an incomplete enhanced response is reused.
			stepReq.AudioPath = salvaged
		}

		var (
			result Result
			err    error
		)
		if kind == KindEnhanced {
			result, err = p.TranscribeAndEnhance(ctx, stepReq)
		} else {
			result, err = p.Transcribe(ctx, stepReq)
		}
		if err == nil {
			if salvaged != "" && result.CleanedAudioPath == "" {
				result.CleanedAudioPath = salvaged
				result.Enhanced = true
			}
			decision.Provider = string(kind)
			decision.EnhancedProcessed = result.Enhanced
			if i > 0 {
				decision.Degraded = true
				decision.DegradedCause = strings.Join(failures, "; ")
				logging.WarnWithContext(r.logger, "transcription served by fallback provider", "provider_degraded",
					logging.String(logging.FieldMediaItemID, req.MediaItemID),
					logging.String("requested", string(chosen)),
					logging.String(logging.FieldProvider, string(kind)),
					logging.String("cause", decision.DegradedCause),
					logging.String(logging.FieldErrorHint, "check the enhanced provider's availability and credentials"),
					logging.String(logging.FieldImpact, "transcript produced without upstream audio cleaning"),
				)
			}
			r.logger.Info("transcription complete",
				logging.String(logging.FieldMediaItemID, req.MediaItemID),
				logging.String(logging.FieldProvider, string(kind)),
				logging.String("reason", reason),
				logging.Int("word_count", len(result.Words)),
				logging.Bool("enhanced", result.Enhanced),
			)
			return result, decision, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, decision, err
		}
		if kind == KindEnhanced && result.CleanedAudioPath != "" {
			salvaged = result.CleanedAudioPath
		}
		lastErr = err
		failures = append(failures, fmt.Sprintf("%s: %v", kind, err))
		r.logger.Debug("provider step failed",
			logging.String(logging.FieldMediaItemID, req.MediaItemID),
			logging.String(logging.FieldProvider, string(kind)),
			logging.Error(err),
		)
	}
	if lastErr == nil {
		lastErr = services.Wrap(services.ErrProviderUnavailable, "provider", "route", "no provider steps", nil)
	}
	return Result{}, decision, lastErr
}

// NewRouterFromConfig wires the standard and enhanced providers from
// configuration. Enhanced is only registered when its URL is set.
func NewRouterFromConfig(cfg *config.Config, logger *slog.Logger) *Router {
	p := cfg.Providers
	delay := time.Duration(p.RetryBaseDelayMS) * time.Millisecond
	providers := []Provider{
		NewStandard(StandardConfig{
			APIKey:         p.OpenAIAPIKey,
			BaseURL:        p.OpenAIBaseURL,
			Model:          p.TranscriptionModel,
			TimeoutSeconds: p.TimeoutSeconds,
			MaxAttempts:    p.MaxAttempts,
			RetryBaseDelay: delay,
		}),
	}
	if p.EnhancedURL != "" {
		providers = append(providers, NewEnhanced(EnhancedConfig{
			BaseURL:        p.EnhancedURL,
			APIKey:         p.EnhancedAPIKey,
			TimeoutSeconds: p.TimeoutSeconds,
			MaxAttempts:    p.MaxAttempts,
			RetryBaseDelay: delay,
		}))
	}
	return NewRouter(Policy{
		TierDefaults:     p.TierDefaults,
		Fallbacks:        p.Fallbacks,
		OperatorOverride: p.OperatorOverride,
	}, logger, providers...)
}
