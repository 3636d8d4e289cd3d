package core

import "time"

// EntitlementState is the lifecycle state of an entitlement.
//
// Valid transitions:
//
//	pending   -> completed | failed
//	completed -> revoked
//
// Anything else is a protocol violation and is rejected with
// ErrInvalidTransition, never silently ignored.
type EntitlementState string

const (
	StatePending   EntitlementState = "pending"
	StateCompleted EntitlementState = "completed"
	StateFailed    EntitlementState = "failed"
	StateRevoked   EntitlementState = "revoked"
)

// Entitlement is the durable record that a subject may access an asset.
// Rows are never deleted; the lifecycle is soft-only (audit requirement).
type Entitlement struct {
	ID        string
	TenantID  string
	SubjectID string
	AssetID   string

	// AmountMinorUnits is the price paid in integer minor currency units.
	// Never floating point.
	AmountMinorUnits int64
	Currency         string

	State EntitlementState

	// Correlation identifiers to the payment processor's own records.
	// Opaque: used for idempotency and reconciliation, never parsed.
	ExternalCheckoutRef string
	ExternalPaymentRef  string
	ExternalRefundRef   string

	FailureReason    string
	RevocationReason string

	CreatedAt   time.Time
	CompletedAt *time.Time
	RevokedAt   *time.Time
}

// Active reports whether the entitlement currently grants access.
func (e *Entitlement) Active() bool {
	return e != nil && e.State == StateCompleted
}

// Asset is a purchasable piece of content. PriceMinorUnits == 0 means the
// asset is free and checkout bypasses the payment processor entirely.
type Asset struct {
	ID              string
	TenantID        string
	Title           string
	PriceMinorUnits int64
	Currency        string
	Published       bool

	// StorageKey locates the underlying media object. It is wrapped in a
	// signed, time-boxed reference before ever reaching a client.
	StorageKey      string
	DurationSeconds float64

	CreatedAt time.Time
}

// Free reports whether checkout can grant immediately without the processor.
func (a *Asset) Free() bool { return a != nil && a.PriceMinorUnits == 0 }

// PlaybackProgress is the per-subject, per-asset resume point.
// Last write wins by wall-clock arrival; there is no merge logic.
type PlaybackProgress struct {
	TenantID        string
	SubjectID       string
	AssetID         string
	PositionSeconds float64
	DurationSeconds float64
	Completed       bool
	LastObservedAt  time.Time
}

// ProgressCompleted is the threshold above which an asset counts as watched.
const ProgressCompletedRatio = 0.95
