package core

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntitlement: the (tenant, subject, asset) tuple already has
	// a pending or completed entitlement. Enforced by the storage layer, not
	// by a pre-check.
	ErrDuplicateEntitlement = errors.New("duplicate entitlement")

	// ErrDuplicateAsset: the catalog already has an asset with this id in
	// the tenant.
	ErrDuplicateAsset = errors.New("duplicate asset")

	// ErrInvalidTransition: the requested state transition is not allowed
	// from the row's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrFulfillmentConflict: a completion arrived with a payment reference
	// that differs from the one already recorded. Processor-side anomaly;
	// requires manual review, never auto-resolved.
	ErrFulfillmentConflict = errors.New("fulfillment conflict")
)
