package fulfillment

import (
	"errors"
	"fmt"
	"testing"
)

func completedBody(entID, tenantID, payRef string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.completed",
		"data": {
			"payment_ref": %q,
			"metadata": {"entitlement_id": %q, "tenant_id": %q}
		}
	}`, payRef, entID, tenantID))
}

func TestParseEvent_Completed(t *testing.T) {
	ev, err := ParseEvent(completedBody("e1", "t1", "pay_1"))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != KindCheckoutCompleted || ev.EntitlementID != "e1" || ev.TenantID != "t1" || ev.PaymentRef != "pay_1" {
		t.Fatalf("bad event: %+v", ev)
	}
}

func TestParseEvent_FailedDefaultsReason(t *testing.T) {
	body := []byte(`{
		"id": "evt_2",
		"type": "checkout.failed",
		"data": {"metadata": {"entitlement_id": "e1", "tenant_id": "t1"}}
	}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != KindCheckoutFailed || ev.Reason == "" {
		t.Fatalf("bad event: %+v", ev)
	}
}

func TestParseEvent_UnknownKindRejected(t *testing.T) {
	body := []byte(`{
		"id": "evt_3",
		"type": "invoice.created",
		"data": {"metadata": {"entitlement_id": "e1", "tenant_id": "t1"}}
	}`)
	if _, err := ParseEvent(body); !errors.Is(err, ErrUnroutable) {
		t.Fatalf("unknown kind must be unroutable, got %v", err)
	}
}

func TestParseEvent_MissingMetadata(t *testing.T) {
	for _, body := range [][]byte{
		[]byte(`{"type":"checkout.completed","data":{"payment_ref":"p1"}}`),
		[]byte(`{"type":"checkout.completed","data":{"payment_ref":"p1","metadata":{"tenant_id":"t1"}}}`),
		[]byte(`{"type":"checkout.failed","data":{}}`),
	} {
		if _, err := ParseEvent(body); !errors.Is(err, ErrUnroutable) {
			t.Fatalf("body %s: want ErrUnroutable, got %v", body, err)
		}
	}
}

func TestParseEvent_CompletedWithoutPaymentRef(t *testing.T) {
	if _, err := ParseEvent(completedBody("e1", "t1", "")); !errors.Is(err, ErrUnroutable) {
		t.Fatalf("want ErrUnroutable, got %v", err)
	}
}

func TestParseEvent_MalformedJSON(t *testing.T) {
	if _, err := ParseEvent([]byte(`{not json`)); !errors.Is(err, ErrUnroutable) {
		t.Fatalf("want ErrUnroutable, got %v", err)
	}
}
