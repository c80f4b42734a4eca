package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"splicer/internal/generate"
	"splicer/internal/logging"
	"splicer/internal/services"
	"splicer/internal/store"
)

const maxBodyBytes = 32 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// fail maps err to a status code and writes it. Server-side failures are
// logged with the request context.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generate.ErrRegenerationBudget),
		errors.Is(err, services.ErrTranscriptNotFound),
		errors.Is(err, services.ErrBillingConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrCommandGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrProviderUnavailable),
		errors.Is(err, services.ErrProviderIncomplete),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into dst. An empty body leaves dst untouched
// when optional is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "decode", fmt.Sprintf("invalid request body: %v", err), nil)
	}
	return nil
}
