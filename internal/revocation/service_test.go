package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/payment"
	"github.com/dropDatabas3/paygate/internal/store/core"
	"github.com/dropDatabas3/paygate/internal/store/memory"
)

type fakeProcessor struct {
	refundErr  error
	refundReqs []string // payment refs refunded
}

func (f *fakeProcessor) CreateCheckout(context.Context, payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	return nil, errors.New("not used")
}

func (f *fakeProcessor) Refund(_ context.Context, paymentRef string, _ int64, _ string) (string, error) {
	if f.refundErr != nil {
		return "", f.refundErr
	}
	f.refundReqs = append(f.refundReqs, paymentRef)
	return "re_1", nil
}

func (f *fakeProcessor) Status(context.Context, string) (*payment.CheckoutStatus, error) {
	return nil, errors.New("not used")
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, proc payment.Client) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.SetClock(func() time.Time { return base })
	svc := NewService(entitlement.NewService(store), proc, 30*24*time.Hour)
	svc.SetClock(func() time.Time { return base })
	return svc, store
}

func seedCompleted(t *testing.T, store *memory.Store, paymentRef string) {
	t.Helper()
	ctx := context.Background()
	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1", AmountMinorUnits: 999, Currency: "EUR"}
	if err := store.CreatePending(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.MarkCompleted(ctx, "t1", "e1", paymentRef); err != nil {
		t.Fatal(err)
	}
}

func TestRevoke_WithinWindow(t *testing.T) {
	proc := &fakeProcessor{}
	svc, store := setup(t, proc)
	seedCompleted(t, store, "pay_1")

	svc.SetClock(func() time.Time { return base.Add(10 * 24 * time.Hour) })

	e, err := svc.Revoke(context.Background(), "t1", "e1", "ops@example.com", "customer request")
	if err != nil {
		t.Fatal(err)
	}
	if e.State != core.StateRevoked || e.ExternalRefundRef != "re_1" {
		t.Fatalf("bad row: %+v", e)
	}
	if len(proc.refundReqs) != 1 || proc.refundReqs[0] != "pay_1" {
		t.Fatalf("refund calls = %v", proc.refundReqs)
	}
}

func TestRevoke_WindowBoundary(t *testing.T) {
	proc := &fakeProcessor{}
	svc, store := setup(t, proc)
	seedCompleted(t, store, "pay_1")

	// Exactly at the edge of the window: still allowed.
	svc.SetClock(func() time.Time { return base.Add(30 * 24 * time.Hour) })
	if _, err := svc.Revoke(context.Background(), "t1", "e1", "ops", "refund"); err != nil {
		t.Fatalf("at-window revoke must succeed: %v", err)
	}
}

func TestRevoke_OutsideWindow(t *testing.T) {
	proc := &fakeProcessor{}
	svc, store := setup(t, proc)
	seedCompleted(t, store, "pay_1")

	svc.SetClock(func() time.Time { return base.Add(30*24*time.Hour + time.Second) })
	_, err := svc.Revoke(context.Background(), "t1", "e1", "ops", "too late")
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("want ErrNotEligible, got %v", err)
	}
	// Policy check runs before the external call: no refund was attempted.
	if len(proc.refundReqs) != 0 {
		t.Fatalf("refund attempted outside window: %v", proc.refundReqs)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StateCompleted {
		t.Fatalf("state = %s", e.State)
	}
}

func TestRevoke_ReasonRequired(t *testing.T) {
	proc := &fakeProcessor{}
	svc, store := setup(t, proc)
	seedCompleted(t, store, "pay_1")

	for _, reason := range []string{"", "  ", "ab"} {
		if _, err := svc.Revoke(context.Background(), "t1", "e1", "ops", reason); !errors.Is(err, ErrInvalidReason) {
			t.Fatalf("reason %q: want ErrInvalidReason, got %v", reason, err)
		}
	}
	// Rejected before any side effect: no refund call, row untouched.
	if len(proc.refundReqs) != 0 {
		t.Fatalf("refund attempted without a reason: %v", proc.refundReqs)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StateCompleted || e.RevocationReason != "" {
		t.Fatalf("row mutated: %+v", e)
	}
}

func TestRevoke_WrongState(t *testing.T) {
	proc := &fakeProcessor{}
	svc, store := setup(t, proc)
	// Pending only, never completed.
	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1"}
	if err := store.CreatePending(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Revoke(context.Background(), "t1", "e1", "ops", "refund"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("want ErrNotEligible, got %v", err)
	}
}

func TestRevoke_ProcessorFailureLeavesCompleted(t *testing.T) {
	proc := &fakeProcessor{refundErr: &payment.Error{Op: "refund", Status: 502, Msg: "down"}}
	svc, store := setup(t, proc)
	seedCompleted(t, store, "pay_1")

	_, err := svc.Revoke(context.Background(), "t1", "e1", "ops", "refund")
	if err == nil {
		t.Fatal("want processor error")
	}
	var pErr *payment.Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error type: %v", err)
	}
	// No partial revocation.
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StateCompleted || e.ExternalRefundRef != "" {
		t.Fatalf("row mutated despite refund failure: %+v", e)
	}
}

func TestRevoke_FreeGrantSkipsProcessor(t *testing.T) {
	proc := &fakeProcessor{}
	svc, store := setup(t, proc)

	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1"}
	if err := store.CreateCompletedFree(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	revoked, err := svc.Revoke(context.Background(), "t1", "e1", "ops", "abuse")
	if err != nil {
		t.Fatal(err)
	}
	if revoked.State != core.StateRevoked {
		t.Fatalf("state = %s", revoked.State)
	}
	if len(proc.refundReqs) != 0 {
		t.Fatal("free grant must not hit the processor")
	}
}
