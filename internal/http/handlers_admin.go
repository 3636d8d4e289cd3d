package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/paygate/internal/payment"
	"github.com/dropDatabas3/paygate/internal/revocation"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// Admin surface. Tenant scoping is explicit on every call: the admin key is
// deployment-wide, so the tenant always travels in the request itself.

type createAssetRequest struct {
	TenantID        string  `json:"tenantId"`
	Title           string  `json:"title"`
	PriceMinorUnits int64   `json:"priceMinorUnits"`
	Currency        string  `json:"currency"`
	StorageKey      string  `json:"storageKey"`
	DurationSeconds float64 `json:"durationSeconds"`
	Published       bool    `json:"published"`
}

type assetResponse struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	Title           string    `json:"title"`
	PriceMinorUnits int64     `json:"priceMinorUnits"`
	Currency        string    `json:"currency"`
	Published       bool      `json:"published"`
	StorageKey      string    `json:"storageKey"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toAssetResponse(a *core.Asset) assetResponse {
	return assetResponse{
		ID:              a.ID,
		TenantID:        a.TenantID,
		Title:           a.Title,
		PriceMinorUnits: a.PriceMinorUnits,
		Currency:        a.Currency,
		Published:       a.Published,
		StorageKey:      a.StorageKey,
		DurationSeconds: a.DurationSeconds,
		CreatedAt:       a.CreatedAt,
	}
}

func (s *Server) HandleAdminCreateAsset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAssetRequest
		if !ReadJSON(w, r, &req) {
			return
		}
		req.TenantID = strings.TrimSpace(req.TenantID)
		req.Title = strings.TrimSpace(req.Title)
		if req.TenantID == "" || req.Title == "" || req.StorageKey == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "tenantId, title and storageKey are required", 1422)
			return
		}
		if req.PriceMinorUnits < 0 {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "price must be non-negative", 1422)
			return
		}
		if req.PriceMinorUnits > 0 && req.Currency == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "currency is required for paid assets", 1422)
			return
		}

		a := &core.Asset{
			ID:              uuid.NewString(),
			TenantID:        req.TenantID,
			Title:           req.Title,
			PriceMinorUnits: req.PriceMinorUnits,
			Currency:        strings.ToUpper(req.Currency),
			Published:       req.Published,
			StorageKey:      req.StorageKey,
			DurationSeconds: req.DurationSeconds,
		}
		if err := s.Store.CreateAsset(r.Context(), a); err != nil {
			if errors.Is(err, core.ErrDuplicateAsset) {
				WriteError(w, http.StatusConflict, "duplicate_asset", "asset id already exists", 1409)
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not create asset", 1500)
			return
		}
		created, err := s.Store.GetAsset(r.Context(), a.TenantID, a.ID)
		if err != nil {
			created = a
		}
		WriteJSON(w, http.StatusCreated, toAssetResponse(created))
	}
}

func (s *Server) HandleAdminListAssets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		if tenantID == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "tenant_id is required", 1422)
			return
		}
		assets, err := s.Store.ListAssets(r.Context(), tenantID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not list assets", 1500)
			return
		}
		out := make([]assetResponse, 0, len(assets))
		for i := range assets {
			out = append(out, toAssetResponse(&assets[i]))
		}
		WriteJSON(w, http.StatusOK, map[string]any{"assets": out})
	}
}

type publishAssetRequest struct {
	TenantID  string `json:"tenantId"`
	Published bool   `json:"published"`
}

func (s *Server) HandleAdminPublishAsset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := chi.URLParam(r, "assetID")
		var req publishAssetRequest
		if !ReadJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.TenantID) == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "tenantId is required", 1422)
			return
		}
		if err := s.Store.SetAssetPublished(r.Context(), req.TenantID, assetID, req.Published); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "not_found", "asset not found", 1404)
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not update asset", 1500)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"published": req.Published})
	}
}

func (s *Server) HandleAdminGetEntitlement() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "entitlementID")
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		if tenantID == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "tenant_id is required", 1422)
			return
		}
		e, err := s.Entitlements.Get(r.Context(), tenantID, id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "not_found", "entitlement not found", 1404)
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal_error", "could not read entitlement", 1500)
			return
		}
		WriteJSON(w, http.StatusOK, toEntitlementResponse(e))
	}
}

type refundRequest struct {
	TenantID    string `json:"tenantId"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requestedBy"`
}

// HandleAdminRefund refunds an entitlement and revokes access.
//
//	200 -> revoked
//	409 -> not eligible (state or window)
//	422 -> reason missing or too short; rejected before any external call
//	502 -> the processor refused or failed; entitlement untouched
func (s *Server) HandleAdminRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "entitlementID")
		var req refundRequest
		if !ReadJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.TenantID) == "" {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "tenantId is required", 1422)
			return
		}
		if len(strings.TrimSpace(req.Reason)) < revocation.MinReasonLen {
			WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "a revocation reason of at least 3 characters is required", 1422)
			return
		}

		e, err := s.Revocation.Revoke(r.Context(), req.TenantID, id, req.RequestedBy, req.Reason)
		if err != nil {
			switch {
			case errors.Is(err, revocation.ErrInvalidReason):
				WriteError(w, http.StatusUnprocessableEntity, "invalid_request", "a revocation reason of at least 3 characters is required", 1422)
			case errors.Is(err, core.ErrNotFound):
				WriteError(w, http.StatusNotFound, "not_found", "entitlement not found", 1404)
			case errors.Is(err, revocation.ErrNotEligible):
				RecordRefund("ineligible")
				WriteError(w, http.StatusConflict, "not_eligible", err.Error(), 1409)
			default:
				var pErr *payment.Error
				if errors.As(err, &pErr) {
					RecordRefund("processor_error")
					WriteError(w, http.StatusBadGateway, "refund_failed", "payment processor rejected the refund", 1502)
					return
				}
				RecordRefund("error")
				WriteError(w, http.StatusInternalServerError, "internal_error", "could not process refund", 1500)
			}
			return
		}

		RecordRefund("ok")
		WriteJSON(w, http.StatusOK, toEntitlementResponse(e))
	}
}

// HandleAdminSweep triggers one reconciliation pass synchronously.
func (s *Server) HandleAdminSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.Sweeper.Once(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "internal_error", "sweep failed", 1500)
			return
		}
		RecordSweepResolution("completed", out.Completed)
		RecordSweepResolution("failed", out.Failed)
		RecordSweepResolution("skipped", out.Skipped)
		WriteJSON(w, http.StatusOK, map[string]int{
			"examined":  out.Examined,
			"completed": out.Completed,
			"failed":    out.Failed,
			"skipped":   out.Skipped,
		})
	}
}
