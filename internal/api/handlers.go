package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
	"splicer/internal/tasks"
	"splicer/internal/workflow"
)

func (s *Server) handleCreateEpisode(w http.ResponseWriter, r *http.Request) {
	var req CreateEpisodeRequest
	if err := decode(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Owner) == "" {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "create episode", "owner is required", nil))
		return
	}
	if req.MediaItemID != "" {
		item, err := s.deps.Store.GetMediaItem(r.Context(), req.MediaItemID)
		if errors.Is(err, store.ErrNotFound) {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "create episode", "unknown media item "+req.MediaItemID, nil))
			return
		}
		if err != nil {
			s.fail(w, r, services.Wrap(services.ErrTransient, "api", "create episode", "load media item", err))
			return
		}
		if item.Category != media.CategoryMain {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "create episode",
				"media item "+item.ID+" is "+string(item.Category)+", not main content", nil))
			return
		}
	}
	ep := &media.Episode{
		Owner:       strings.TrimSpace(req.Owner),
		Tier:        req.Tier,
		Title:       req.Title,
		MediaItemID: req.MediaItemID,
		TemplateID:  req.TemplateID,
	}
	if err := s.deps.Store.CreateEpisode(r.Context(), ep); err != nil {
		s.fail(w, r, services.Wrap(services.ErrTransient, "api", "create episode", "", err))
		return
	}
	s.writeJSON(w, http.StatusCreated, ep)
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	ep, err := s.deps.Store.GetEpisode(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	var req workflow.AssemblyRequest
	if err := decode(w, r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.deps.Episodes.Submit(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, FromSubmission(sub))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Episodes.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromEpisodeView(view))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ep, err := s.deps.Episodes.Publish(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := decode(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.MediaItemID) == "" {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "detect", "media_item_id is required", nil))
		return
	}
	item, err := s.deps.Store.GetMediaItem(r.Context(), req.MediaItemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cmds, err := s.deps.Reviewer.Detect(r.Context(), item)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cmds)
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Reviewer.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// handleExecute applies the confirmed window and optional override, confirms
// the insert and resolves it. An unchanged, already resolved insert is
// returned without spending its regeneration budget unless regenerate is set.
// The budget unit is taken before any edit is stored, so a 409 leaves the
// command as it was.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decode(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ConfirmedStart == nil || req.ConfirmedEnd == nil {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "execute", "confirmed_start_s and confirmed_end_s are required", nil))
		return
	}
	start, end := *req.ConfirmedStart, *req.ConfirmedEnd
	if !(start >= 0 && start < end) {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "execute",
			fmt.Sprintf("window [%.3f, %.3f] is empty or negative", start, end), nil))
		return
	}
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	c, err := s.deps.Reviewer.Get(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !c.IsInsert() {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "execute", "command "+id+" is not an insert", nil))
		return
	}
	edited := start != c.Start || end != c.End ||
		(req.OverrideText != nil && strings.TrimSpace(*req.OverrideText) != c.OverrideText)
	run := edited || s.deps.Executor.NeedsRun(c, req.Regenerate)
	if run {
		if err := s.deps.Executor.Reserve(ctx, id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if _, err := s.deps.Reviewer.SetBoundary(ctx, id, start, end); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.OverrideText != nil {
		if _, err := s.deps.Reviewer.OverrideText(ctx, id, *req.OverrideText); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	confirmed, err := s.deps.Reviewer.Confirm(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !run {
		s.writeJSON(w, http.StatusOK, FromCommand(confirmed))
		return
	}
	resolved, err := s.deps.Executor.ExecuteReserved(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromCommand(resolved))
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enqueuer == nil {
		s.fail(w, r, services.Wrap(services.ErrConfiguration, "api", "transcribe", "no transcription queue configured", nil))
		return
	}
	var req TranscribeRequest
	if err := decode(w, r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.deps.Store.GetMediaItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	taskID, err := tasks.EnqueueTranscription(r.Context(), s.deps.Enqueuer, tasks.TranscribePayload{
		MediaItemID:      item.ID,
		Tier:             req.Tier,
		ProviderOverride: req.ProviderOverride,
	})
	if err != nil {
		s.fail(w, r, services.Wrap(services.ErrTransient, "api", "transcribe", "", err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, TranscribeResponse{TaskID: taskID})
}

func (s *Server) handleTranscribed(w http.ResponseWriter, r *http.Request) {
	var req TranscribedRequest
	if err := decode(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Transcripts.NotifyTranscribed(r.Context(), mux.Vars(r)["id"], req.Words, req.Provider, req.ProviderMetadata); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
