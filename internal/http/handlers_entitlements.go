package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/paygate/internal/checkout"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

type createEntitlementRequest struct {
	AssetID string `json:"assetId"`
}

type createEntitlementResponse struct {
	EntitlementID string `json:"entitlementId"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
	Granted       bool   `json:"granted"`
}

// HandleCreateEntitlement starts a purchase for the authenticated subject.
//
//	201 -> pending created (checkoutUrl set) or free grant (granted=true)
//	409 -> the subject already holds a pending/completed entitlement
//	422 -> asset unknown or not published
func (s *Server) HandleCreateEntitlement() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			unauthorized(w, "no identity")
			return
		}

		var req createEntitlementRequest
		if !ReadJSON(w, r, &req) {
			return
		}
		req.AssetID = strings.TrimSpace(req.AssetID)
		if req.AssetID == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "assetId is required", 1422)
			return
		}

		res, err := s.Checkout.Start(r.Context(), id.TenantID, id.SubjectID, req.AssetID)
		if err != nil {
			switch {
			case errors.Is(err, checkout.ErrNotPurchasable):
				WriteError(w, http.StatusUnprocessableEntity, "not_purchasable", "asset does not exist or is not published", 1422)
			case errors.Is(err, core.ErrDuplicateEntitlement):
				WriteError(w, http.StatusConflict, "duplicate_entitlement", "an entitlement for this asset already exists", 1409)
			default:
				WriteError(w, http.StatusBadGateway, "checkout_failed", "could not start checkout", 1502)
			}
			return
		}

		kind := "paid"
		if res.Granted {
			kind = "free"
		}
		RecordEntitlementCreated(kind)

		WriteJSON(w, http.StatusCreated, createEntitlementResponse{
			EntitlementID: res.EntitlementID,
			CheckoutURL:   res.CheckoutURL,
			Granted:       res.Granted,
		})
	}
}

type entitlementResponse struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenantId"`
	SubjectID        string     `json:"subjectId"`
	AssetID          string     `json:"assetId"`
	AmountMinorUnits int64      `json:"amountMinorUnits"`
	Currency         string     `json:"currency"`
	State            string     `json:"state"`
	FailureReason    string     `json:"failureReason,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
}

func toEntitlementResponse(e *core.Entitlement) entitlementResponse {
	return entitlementResponse{
		ID:               e.ID,
		TenantID:         e.TenantID,
		SubjectID:        e.SubjectID,
		AssetID:          e.AssetID,
		AmountMinorUnits: e.AmountMinorUnits,
		Currency:         e.Currency,
		State:            string(e.State),
		FailureReason:    e.FailureReason,
		RevocationReason: e.RevocationReason,
		CreatedAt:        e.CreatedAt,
		CompletedAt:      e.CompletedAt,
		RevokedAt:        e.RevokedAt,
	}
}
