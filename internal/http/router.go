// Package http is the service's HTTP surface: public buyer endpoints, the
// processor webhook, and the key-gated admin API.
package http

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/paygate/internal/access"
	"github.com/dropDatabas3/paygate/internal/cache"
	"github.com/dropDatabas3/paygate/internal/checkout"
	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/fulfillment"
	"github.com/dropDatabas3/paygate/internal/progress"
	"github.com/dropDatabas3/paygate/internal/rate"
	"github.com/dropDatabas3/paygate/internal/revocation"
	"github.com/dropDatabas3/paygate/internal/store/core"
	"github.com/dropDatabas3/paygate/internal/sweep"
)

// Server bundles the wired services behind the HTTP handlers. Everything is
// constructor-injected from main; handlers hold no globals.
type Server struct {
	Store        core.Store
	Cache        cache.Client
	Checkout     *checkout.Service
	Entitlements *entitlement.Service
	Fulfillment  *fulfillment.Processor
	Access       *access.Issuer
	Progress     *progress.Tracker
	Revocation   *revocation.Service
	Sweeper      *sweep.Sweeper

	// AuthPub verifies caller bearer tokens. AuthIssuer, when set, is
	// enforced as the token's iss claim.
	AuthPub    ed25519.PublicKey
	AuthIssuer string

	// AdminKeyHash is the bcrypt hash gating /v1/admin.
	AdminKeyHash string

	// Limiter throttles the buyer-facing endpoints. Nil disables limiting.
	Limiter rate.Limiter

	// RefundLimiter throttles the admin refund endpoint; refunds hit the
	// external processor, so they get their own tighter window. Nil disables.
	RefundLimiter rate.Limiter

	// Metrics is the /metrics handler from RegisterMetrics. Nil hides the
	// endpoint.
	Metrics http.Handler
}

// Router assembles the full route tree with the middleware stack applied
// outside-in: request id, recovery, logging, security headers, metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz())
	r.Get("/readyz", s.handleReadyz())
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	// Webhook: authenticated by signature, not by bearer token, and never
	// rate limited — throttling the processor only causes redelivery storms.
	r.Post("/v1/webhooks/payment", s.HandleWebhook())

	// Buyer-facing endpoints: bearer auth, then rate limiting keyed by the
	// authenticated identity.
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return WithBearerAuth(next, s.AuthPub, s.AuthIssuer)
		})
		r.Use(func(next http.Handler) http.Handler {
			return WithRateLimit(next, s.Limiter)
		})

		r.Post("/v1/entitlements", s.HandleCreateEntitlement())
		r.Get("/v1/assets/{assetID}/access", s.HandleAccess())
		r.Post("/v1/assets/{assetID}/progress", s.HandleRecordProgress())
		r.Get("/v1/assets/{assetID}/progress", s.HandleGetProgress())
	})

	// Admin surface.
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return WithAdminKey(next, s.AdminKeyHash)
		})

		r.Post("/v1/admin/assets", s.HandleAdminCreateAsset())
		r.Get("/v1/admin/assets", s.HandleAdminListAssets())
		r.Post("/v1/admin/assets/{assetID}/publish", s.HandleAdminPublishAsset())
		r.Get("/v1/admin/entitlements/{entitlementID}", s.HandleAdminGetEntitlement())
		r.With(func(next http.Handler) http.Handler {
			return WithRateLimit(next, s.RefundLimiter)
		}).Post("/v1/admin/entitlements/{entitlementID}/refund", s.HandleAdminRefund())
		r.Post("/v1/admin/sweep", s.HandleAdminSweep())
	})

	var h http.Handler = r
	h = WithMetrics(h)
	h = WithSecurityHeaders(h)
	h = WithLogging(h)
	h = WithRecover(h)
	h = WithRequestID(h)
	return h
}

func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleReadyz checks the dependencies that must answer before this replica
// takes traffic: the store and, when configured, the cache.
func (s *Server) handleReadyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "not_ready", "store unavailable", 1503)
			return
		}
		if s.Cache != nil {
			if err := s.Cache.Ping(ctx); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "not_ready", "cache unavailable", 1503)
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
