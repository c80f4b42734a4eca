package api

import (
	"splicer/internal/media"
	"splicer/internal/workflow"
)

// CreateEpisodeRequest is the body of POST /episodes.
type CreateEpisodeRequest struct {
	Owner       string `json:"owner"`
	Tier        string `json:"tier,omitempty"`
	Title       string `json:"title"`
	MediaItemID string `json:"media_item_id"`
	TemplateID  string `json:"template_id,omitempty"`
}

// AssembleResponse is returned when an assembly request is accepted.
type AssembleResponse struct {
	EpisodeID string `json:"episode_id"`
	JobHandle string `json:"job_handle"`
	Status    string `json:"status"`
	Queued    bool   `json:"queued"`
}

// StatusResponse is the polled status of an episode.
type StatusResponse struct {
	State       string             `json:"state"`
	Message     string             `json:"message"`
	JobHandle   string             `json:"job_handle,omitempty"`
	Attempts    int                `json:"attempts"`
	FinalAudio  string             `json:"final_audio,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Derivatives []media.Derivative `json:"derivatives,omitempty"`
}

// DetectRequest is the body of POST /commands/detect.
type DetectRequest struct {
	MediaItemID string `json:"media_item_id"`
}

// ExecuteRequest is the body of POST /commands/{id}/execute. Regenerate
// asks for a new response even when a ready one is stored.
type ExecuteRequest struct {
	ConfirmedStart *float64 `json:"confirmed_start_s"`
	ConfirmedEnd   *float64 `json:"confirmed_end_s"`
	OverrideText   *string  `json:"override_text,omitempty"`
	Regenerate     bool     `json:"regenerate,omitempty"`
}

// ExecuteResponse reports the resolved insert.
type ExecuteResponse struct {
	CommandID     string  `json:"command_id"`
	PromptText    string  `json:"prompt_text"`
	ResponseText  string  `json:"response_text"`
	AudioRef      string  `json:"audio_ref"`
	AudioSeconds  float64 `json:"audio_s"`
	Regenerations int     `json:"regenerations"`
}

// TranscribeRequest is the body of POST /media/{id}/transcribe.
type TranscribeRequest struct {
	Tier             string `json:"tier"`
	ProviderOverride string `json:"provider_override,omitempty"`
}

// TranscribeResponse carries the queued task id.
type TranscribeResponse struct {
	TaskID string `json:"task_id"`
}

// TranscribedRequest is the provider callback body.
type TranscribedRequest struct {
	Words            []media.Word   `json:"words"`
	Provider         string         `json:"provider"`
	ProviderMetadata map[string]any `json:"provider_metadata,omitempty"`
}

// HealthResponse summarizes the workflow for /healthz.
type HealthResponse struct {
	Healthy      bool           `json:"healthy"`
	Running      bool           `json:"running"`
	Workers      int            `json:"workers"`
	Active       int            `json:"active"`
	LastError    string         `json:"last_error,omitempty"`
	EpisodeStats map[string]int `json:"episode_stats"`
	Stages       []StageHealth  `json:"stages"`
}

// StageHealth mirrors readiness reporting for workflow dependencies.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromSubmission converts a workflow submission.
func FromSubmission(sub workflow.Submission) AssembleResponse {
	return AssembleResponse{
		EpisodeID: sub.EpisodeID,
		JobHandle: sub.JobHandle,
		Status:    string(sub.Status),
		Queued:    sub.Queued,
	}
}

// FromEpisodeView converts a workflow status view.
func FromEpisodeView(v workflow.EpisodeView) StatusResponse {
	return StatusResponse{
		State:       string(v.State),
		Message:     v.Message,
		JobHandle:   v.JobHandle,
		Attempts:    v.Attempts,
		FinalAudio:  v.FinalAudio,
		Warnings:    v.Warnings,
		Derivatives: v.Derivatives,
	}
}

// FromCommand converts a resolved insert.
func FromCommand(c *media.Command) ExecuteResponse {
	return ExecuteResponse{
		CommandID:     c.ID,
		PromptText:    c.PromptText,
		ResponseText:  c.ResponseText,
		AudioRef:      c.AudioRef,
		AudioSeconds:  c.AudioSeconds,
		Regenerations: c.Regenerations,
	}
}

// FromStatusSummary converts the workflow summary. The service is healthy
// when every stage is ready.
func FromStatusSummary(s workflow.StatusSummary) HealthResponse {
	resp := HealthResponse{
		Healthy:      true,
		Running:      s.Running,
		Workers:      s.Workers,
		Active:       len(s.Active),
		LastError:    s.LastError,
		EpisodeStats: make(map[string]int, len(s.EpisodeStats)),
		Stages:       make([]StageHealth, 0, len(s.Health)),
	}
	for status, n := range s.EpisodeStats {
		resp.EpisodeStats[string(status)] = n
	}
	for _, h := range s.Health {
		resp.Healthy = resp.Healthy && h.Ready
		resp.Stages = append(resp.Stages, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return resp
}
