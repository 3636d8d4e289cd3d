// Package payment talks to the external payment processor.
//
// Only three capabilities are consumed: checkout-session creation, refund by
// payment reference, and checkout-status lookup (used by the reconciliation
// sweep). No processor SDK; retry policy belongs to our callers, not to a
// client library.
package payment

import (
	"context"
	"fmt"
)

// CheckoutRequest carries everything the processor needs to start a session.
// The entitlement id travels as opaque metadata so the webhook can be routed
// without trusting any processor-assigned identifier as a primary key.
type CheckoutRequest struct {
	EntitlementID    string
	TenantID         string
	SubjectID        string
	AssetID          string
	AmountMinorUnits int64
	Currency         string
	Description      string
}

// CheckoutSession is the processor's answer: an opaque session reference and
// a redirect handle for the buyer's browser.
type CheckoutSession struct {
	SessionRef  string
	RedirectURL string
}

// CheckoutState is the processor-side state of a checkout session.
type CheckoutState string

const (
	CheckoutPending   CheckoutState = "pending"
	CheckoutCompleted CheckoutState = "completed"
	CheckoutExpired   CheckoutState = "expired"
)

// CheckoutStatus is the sweep's view of a session.
type CheckoutStatus struct {
	State      CheckoutState
	PaymentRef string // set when State == CheckoutCompleted
}

// Client is the outbound interface to the processor.
type Client interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// Refund refunds a payment by its processor reference. Returns the
	// processor's refund reference.
	Refund(ctx context.Context, paymentRef string, amountMinorUnits int64, reason string) (string, error)

	// Status looks up a checkout session by its reference.
	Status(ctx context.Context, sessionRef string) (*CheckoutStatus, error)
}

// Error wraps any processor-side failure. Transient by contract: callers
// retry with backoff. The message never carries credentials.
type Error struct {
	Op     string
	Status int
	Msg    string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("payment: %s: status=%d %s", e.Op, e.Status, e.Msg)
	}
	return fmt.Sprintf("payment: %s: %s", e.Op, e.Msg)
}
