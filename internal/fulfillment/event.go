package fulfillment

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnroutable: the notification is authentic but cannot be mapped to an
// entitlement (unknown kind, missing metadata). We never guess.
var ErrUnroutable = errors.New("unroutable notification")

// Event kinds the processor is known to send. Anything else hits the
// default reject arm.
const (
	KindCheckoutCompleted = "checkout.completed"
	KindCheckoutFailed    = "checkout.failed"
)

// Event is the decoded, routed form of a processor notification.
type Event struct {
	ID            string
	Kind          string
	EntitlementID string
	TenantID      string
	PaymentRef    string // checkout.completed only
	Reason        string // checkout.failed only
}

// wireEvent mirrors the provider's loosely-typed JSON. Decoding is
// pessimistic: each known kind validates its own required fields.
type wireEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		PaymentRef string            `json:"payment_ref"`
		Reason     string            `json:"reason"`
		Metadata   map[string]string `json:"metadata"`
	} `json:"data"`
}

// ParseEvent decodes and routes a raw notification body. The embedded
// entitlement id in metadata is the only routing key; processor-assigned
// identifiers are never used as primary keys.
func ParseEvent(body []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: malformed body", ErrUnroutable)
	}

	entitlementID := w.Data.Metadata["entitlement_id"]
	tenantID := w.Data.Metadata["tenant_id"]

	switch w.Type {
	case KindCheckoutCompleted:
		if entitlementID == "" || tenantID == "" {
			return nil, fmt.Errorf("%w: missing entitlement metadata", ErrUnroutable)
		}
		if w.Data.PaymentRef == "" {
			return nil, fmt.Errorf("%w: completed event without payment_ref", ErrUnroutable)
		}
		return &Event{
			ID:            w.ID,
			Kind:          w.Type,
			EntitlementID: entitlementID,
			TenantID:      tenantID,
			PaymentRef:    w.Data.PaymentRef,
		}, nil
	case KindCheckoutFailed:
		if entitlementID == "" || tenantID == "" {
			return nil, fmt.Errorf("%w: missing entitlement metadata", ErrUnroutable)
		}
		reason := w.Data.Reason
		if reason == "" {
			reason = "payment failed"
		}
		return &Event{
			ID:            w.ID,
			Kind:          w.Type,
			EntitlementID: entitlementID,
			TenantID:      tenantID,
			Reason:        reason,
		}, nil
	default:
		// unknown, reject
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrUnroutable, w.Type)
	}
}
