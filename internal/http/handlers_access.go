package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/paygate/internal/access"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
)

type accessResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleAccess issues a signed, time-boxed URL for an asset the caller holds
// a completed entitlement for.
//
// Denial is uniform 403 with no detail: never purchased, refunded and unknown
// asset are indistinguishable to the caller.
func (s *Server) HandleAccess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			unauthorized(w, "no identity")
			return
		}
		assetID := chi.URLParam(r, "assetID")

		grant, err := s.Access.Issue(r.Context(), id.TenantID, id.SubjectID, assetID)
		if err != nil {
			if errors.Is(err, access.ErrAccessDenied) {
				RecordAccessGrant("denied")
				WriteError(w, http.StatusForbidden, "access_denied", "", 1403)
				return
			}
			RecordAccessGrant("error")
			logger.From(r.Context()).Error("access issuance failed",
				logger.AssetID(assetID), logger.Err(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not issue access", 1500)
			return
		}

		RecordAccessGrant("granted")
		// The response embeds a capability token; keep it out of shared caches.
		w.Header().Set("Cache-Control", "no-store")
		WriteJSON(w, http.StatusOK, accessResponse{URL: grant.URL, ExpiresAt: grant.ExpiresAt})
	}
}
