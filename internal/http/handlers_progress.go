package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/paygate/internal/progress"
)

type recordProgressRequest struct {
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type progressResponse struct {
	PositionSeconds float64 `json:"positionSeconds"`
}

// HandleRecordProgress saves a playback resume point. 204 on success.
func (s *Server) HandleRecordProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			unauthorized(w, "no identity")
			return
		}
		assetID := chi.URLParam(r, "assetID")

		var req recordProgressRequest
		if !ReadJSON(w, r, &req) {
			return
		}

		err := s.Progress.Record(r.Context(), id.TenantID, id.SubjectID, assetID, req.PositionSeconds, req.DurationSeconds)
		if err != nil {
			if errors.Is(err, progress.ErrNoEntitlement) {
				WriteError(w, http.StatusForbidden, "access_denied", "", 1403)
				return
			}
			if req.PositionSeconds < 0 || req.DurationSeconds < 0 {
				WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "position and duration must be non-negative", 1422)
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not record progress", 1500)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetProgress returns the saved resume point, 0 when none exists.
func (s *Server) HandleGetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			unauthorized(w, "no identity")
			return
		}
		assetID := chi.URLParam(r, "assetID")

		pos, err := s.Progress.Position(r.Context(), id.TenantID, id.SubjectID, assetID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not read progress", 1500)
			return
		}
		WriteJSON(w, http.StatusOK, progressResponse{PositionSeconds: pos})
	}
}
