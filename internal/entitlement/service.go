// Package entitlement wraps the store's lifecycle operations with audit
// logging. All invariant enforcement stays in the store; this layer adds
// observability and the access predicate used by issuance.
package entitlement

import (
	"context"
	"errors"

	"github.com/dropDatabas3/paygate/internal/audit"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

type Service struct {
	store core.Store
}

func NewService(store core.Store) *Service {
	return &Service{store: store}
}

// HasActive reports whether the subject currently holds a completed,
// non-revoked entitlement for the asset. Never cached: every access attempt
// re-evaluates against current state so a revocation is observed immediately
// by the next issuance.
func (s *Service) HasActive(ctx context.Context, tenantID, subjectID, assetID string) (bool, error) {
	_, err := s.store.FindCompleted(ctx, tenantID, subjectID, assetID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*core.Entitlement, error) {
	return s.store.GetEntitlement(ctx, tenantID, id)
}

// MarkCompleted applies the pending -> completed transition. Idempotent per
// store semantics; the bool result reports whether this call actually moved
// the row (false on redelivery), so callers fire side effects exactly once.
// The store decides it under the transition's own lock; deciding it here
// from a separate read would let two concurrent redeliveries both claim the
// transition.
func (s *Service) MarkCompleted(ctx context.Context, tenantID, id, paymentRef string) (*core.Entitlement, bool, error) {
	e, transitioned, err := s.store.MarkCompleted(ctx, tenantID, id, paymentRef)
	if err != nil {
		if errors.Is(err, core.ErrFulfillmentConflict) {
			// Data-integrity anomaly. Loud on purpose; an operator has to look.
			stored := ""
			if cur, gerr := s.store.GetEntitlement(ctx, tenantID, id); gerr == nil {
				stored = cur.ExternalPaymentRef
			}
			logger.From(ctx).Error("fulfillment conflict",
				logger.EntitlementID(id),
				logger.PaymentRef(paymentRef),
				logger.String("stored_payment_ref", stored))
		}
		return nil, false, err
	}

	if transitioned {
		audit.Log(ctx, "entitlement.completed",
			logger.EntitlementID(e.ID),
			logger.TenantID(e.TenantID),
			logger.SubjectID(e.SubjectID),
			logger.AssetID(e.AssetID),
			logger.PaymentRef(paymentRef))
	}
	return e, transitioned, nil
}

func (s *Service) MarkFailed(ctx context.Context, tenantID, id, reason string) (*core.Entitlement, error) {
	e, err := s.store.MarkFailed(ctx, tenantID, id, reason)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, "entitlement.failed",
		logger.EntitlementID(e.ID),
		logger.TenantID(e.TenantID),
		logger.String("reason", reason))
	return e, nil
}

func (s *Service) MarkRevoked(ctx context.Context, tenantID, id, reason, refundRef string) (*core.Entitlement, error) {
	e, err := s.store.MarkRevoked(ctx, tenantID, id, reason, refundRef)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, "entitlement.revoked",
		logger.EntitlementID(e.ID),
		logger.TenantID(e.TenantID),
		logger.RefundRef(refundRef),
		logger.String("reason", reason))
	return e, nil
}
