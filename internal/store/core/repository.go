package core

import (
	"context"
	"time"
)

// Store is the single source of truth for entitlements, assets and playback
// progress. It is the only component allowed to enforce the lifecycle
// invariants; every other layer treats it as authoritative and never caches
// an access decision across requests.
type Store interface {
	EntitlementStore
	AssetStore
	ProgressStore

	Ping(ctx context.Context) error
	Close()
}

// EntitlementStore holds the purchase lifecycle.
type EntitlementStore interface {
	// CreatePending inserts a new pending entitlement. Returns
	// ErrDuplicateEntitlement when the subject already has a pending or
	// completed entitlement for the asset (uniqueness constraint scoped to
	// those two states; concurrent callers race to exactly one success).
	CreatePending(ctx context.Context, e *Entitlement) error

	// CreateCompletedFree inserts an entitlement that is already completed,
	// in a single transaction, so no observer ever sees a transient pending
	// free grant. No external references are recorded.
	CreateCompletedFree(ctx context.Context, e *Entitlement) error

	GetEntitlement(ctx context.Context, tenantID, id string) (*Entitlement, error)

	// FindActive returns the pending-or-completed entitlement for the tuple,
	// or ErrNotFound.
	FindActive(ctx context.Context, tenantID, subjectID, assetID string) (*Entitlement, error)

	// FindCompleted returns the completed entitlement for the tuple, or
	// ErrNotFound. This is the predicate behind every access decision.
	FindCompleted(ctx context.Context, tenantID, subjectID, assetID string) (*Entitlement, error)

	// MarkCompleted transitions pending -> completed. The bool reports
	// whether THIS call moved the row; it is decided under the same lock as
	// the transition, so concurrent redeliveries see true exactly once.
	// Idempotent: if the row is already completed with the same paymentRef
	// the stored row is returned with false and CompletedAt is untouched. A
	// different paymentRef yields ErrFulfillmentConflict. Any other current
	// state yields ErrInvalidTransition.
	MarkCompleted(ctx context.Context, tenantID, id, paymentRef string) (*Entitlement, bool, error)

	// MarkFailed transitions pending -> failed. Only valid from pending.
	MarkFailed(ctx context.Context, tenantID, id, reason string) (*Entitlement, error)

	// MarkRevoked transitions completed -> revoked. Idempotent on repeat
	// with the same refundRef.
	MarkRevoked(ctx context.Context, tenantID, id, reason, refundRef string) (*Entitlement, error)

	// SetCheckoutRef records the processor's checkout-session reference on a
	// pending row after the external call succeeds.
	SetCheckoutRef(ctx context.Context, tenantID, id, checkoutRef string) error

	// ListStalePending returns pending entitlements created before the
	// cutoff, for the reconciliation sweep. Tenant-agnostic by design: the
	// sweep runs for the whole deployment.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Entitlement, error)
}

// AssetStore is the catalog.
type AssetStore interface {
	CreateAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, tenantID, id string) (*Asset, error)
	ListAssets(ctx context.Context, tenantID string) ([]Asset, error)
	SetAssetPublished(ctx context.Context, tenantID, id string, published bool) error
}

// ProgressStore persists playback resume points.
type ProgressStore interface {
	// UpsertProgress creates or replaces the row. Every call is the newest
	// truth; out-of-order arrivals just rewind the resume point harmlessly.
	UpsertProgress(ctx context.Context, p *PlaybackProgress) error

	// GetProgress returns ErrNotFound when no row exists. Callers translate
	// that into position 0: absence of progress is a normal state.
	GetProgress(ctx context.Context, tenantID, subjectID, assetID string) (*PlaybackProgress, error)
}
