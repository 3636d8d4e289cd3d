// Package revocation handles refunds: policy check, external refund call,
// then the completed -> revoked transition.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/payment"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// ErrNotEligible: refund denied by policy — wrong state, already revoked, or
// outside the refund window.
var ErrNotEligible = errors.New("not eligible for refund")

// ErrInvalidReason: the revocation reason is missing or too short. A reason
// is required on every transition to revoked.
var ErrInvalidReason = errors.New("revocation reason required")

// MinReasonLen is the shortest acceptable revocation reason.
const MinReasonLen = 3

// DefaultWindow is the refund window applied when config leaves it unset.
const DefaultWindow = 30 * 24 * time.Hour

type Service struct {
	entitlements *entitlement.Service
	processor    payment.Client
	window       time.Duration
	now          func() time.Time
}

func NewService(svc *entitlement.Service, processor payment.Client, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		entitlements: svc,
		processor:    processor,
		window:       window,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Revoke refunds an entitlement.
//
// The window check runs before the external call so a doomed request never
// produces an external side effect. If the processor call fails the row
// stays completed — no partial revocation — and the processor's error is
// surfaced verbatim (secrets already stripped by the payment client).
func (s *Service) Revoke(ctx context.Context, tenantID, id, requestedBy, reason string) (*core.Entitlement, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < MinReasonLen {
		return nil, ErrInvalidReason
	}

	e, err := s.entitlements.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if e.State != core.StateCompleted || e.CompletedAt == nil {
		return nil, ErrNotEligible
	}
	if s.now().Sub(*e.CompletedAt) > s.window {
		return nil, fmt.Errorf("%w: refund window expired", ErrNotEligible)
	}

	// Free grants have no payment to refund; revoke directly.
	refundRef := ""
	if e.ExternalPaymentRef != "" {
		refundRef, err = s.processor.Refund(ctx, e.ExternalPaymentRef, e.AmountMinorUnits, reason)
		if err != nil {
			logger.From(ctx).Warn("external refund failed, entitlement untouched",
				logger.EntitlementID(id), logger.Err(err))
			return nil, err
		}
	}

	revoked, err := s.entitlements.MarkRevoked(ctx, tenantID, id, reason, refundRef)
	if err != nil {
		// Refund went through but the transition failed; operators reconcile
		// via the external refund reference in this log line.
		logger.From(ctx).Error("refund succeeded but revocation transition failed",
			logger.EntitlementID(id), logger.RefundRef(refundRef), logger.Err(err))
		return nil, err
	}

	logger.From(ctx).Info("entitlement revoked",
		logger.EntitlementID(id),
		logger.RefundRef(refundRef),
		logger.String("requested_by", requestedBy))
	return revoked, nil
}
