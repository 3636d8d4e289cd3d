// Package checkout turns a purchase intent into a pending entitlement and a
// processor redirect handle.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/paygate/internal/audit"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/payment"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// ErrNotPurchasable: the asset does not exist for this tenant or is not
// published. Deliberately one error for both cases.
var ErrNotPurchasable = errors.New("asset not purchasable")

type Service struct {
	store     core.Store
	processor payment.Client
}

func NewService(store core.Store, processor payment.Client) *Service {
	return &Service{store: store, processor: processor}
}

// Result is what the API hands back: either a redirect handle for a paid
// asset or an immediate grant for a free one.
type Result struct {
	EntitlementID string
	CheckoutURL   string
	Granted       bool
}

// Start validates the asset, creates the pending entitlement and asks the
// processor for a checkout session.
//
// The duplicate pre-check below is only for a fast user-facing error; the
// store's uniqueness constraint is the safety mechanism and wins every race.
//
// If the processor call fails after the pending row exists, the row stays:
// the reconciliation sweep retires it later after confirming with the
// processor. Rolling back here would race a slow-but-successful session.
func (s *Service) Start(ctx context.Context, tenantID, subjectID, assetID string) (*Result, error) {
	asset, err := s.store.GetAsset(ctx, tenantID, assetID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrNotPurchasable
		}
		return nil, err
	}
	if !asset.Published {
		return nil, ErrNotPurchasable
	}

	if _, err := s.store.FindActive(ctx, tenantID, subjectID, assetID); err == nil {
		return nil, core.ErrDuplicateEntitlement
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	e := &core.Entitlement{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		SubjectID:        subjectID,
		AssetID:          assetID,
		AmountMinorUnits: asset.PriceMinorUnits,
		Currency:         asset.Currency,
	}

	// Free assets bypass the processor: one transaction, no pending window,
	// no webhook involvement.
	if asset.Free() {
		if err := s.store.CreateCompletedFree(ctx, e); err != nil {
			return nil, err
		}
		audit.Log(ctx, "entitlement.granted_free",
			logger.EntitlementID(e.ID),
			logger.TenantID(tenantID),
			logger.SubjectID(subjectID),
			logger.AssetID(assetID))
		return &Result{EntitlementID: e.ID, Granted: true}, nil
	}

	if err := s.store.CreatePending(ctx, e); err != nil {
		return nil, err
	}
	audit.Log(ctx, "entitlement.pending_created",
		logger.EntitlementID(e.ID),
		logger.TenantID(tenantID),
		logger.SubjectID(subjectID),
		logger.AssetID(assetID))

	session, err := s.processor.CreateCheckout(ctx, payment.CheckoutRequest{
		EntitlementID:    e.ID,
		TenantID:         tenantID,
		SubjectID:        subjectID,
		AssetID:          assetID,
		AmountMinorUnits: asset.PriceMinorUnits,
		Currency:         asset.Currency,
		Description:      asset.Title,
	})
	if err != nil {
		logger.From(ctx).Warn("checkout session creation failed, pending row kept for sweep",
			logger.EntitlementID(e.ID), logger.Err(err))
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if err := s.store.SetCheckoutRef(ctx, tenantID, e.ID, session.SessionRef); err != nil {
		// The session exists at the processor; losing the ref only degrades
		// the sweep to webhook-driven resolution. Log and continue.
		logger.From(ctx).Warn("persist checkout ref failed",
			logger.EntitlementID(e.ID), logger.Err(err))
	}

	return &Result{EntitlementID: e.ID, CheckoutURL: session.RedirectURL}, nil
}
