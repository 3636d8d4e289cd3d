package sweep

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
	statuses map[string]*payment.CheckoutStatus
	err      error
}

func (f *fakeProcessor) CreateCheckout(context.Context, payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	return nil, errors.New("not used")
}

func (f *fakeProcessor) Refund(context.Context, string, int64, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeProcessor) Status(_ context.Context, ref string) (*payment.CheckoutStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	st, ok := f.statuses[ref]
	if !ok {
		return nil, errors.New("unknown session")
	}
	return st, nil
}

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, id, checkoutRef string, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	store.SetClock(func() time.Time { return base.Add(-age) })
	e := &core.Entitlement{ID: id, TenantID: "t1", SubjectID: id + "@example.com", AssetID: "a1"}
	if err := store.CreatePending(ctx, e); err != nil {
		t.Fatal(err)
	}
	if checkoutRef != "" {
		if err := store.SetCheckoutRef(ctx, "t1", id, checkoutRef); err != nil {
			t.Fatal(err)
		}
	}
}

func newSweeper(store *memory.Store, proc payment.Client) *Sweeper {
	s := New(store, entitlement.NewService(store), proc, Config{
		PendingTimeout: 24 * time.Hour,
		BatchLimit:     50,
		Parallelism:    2,
	})
	s.SetClock(func() time.Time { return base })
	return s
}

func TestOnce_LateCompletionApplied(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{statuses: map[string]*payment.CheckoutStatus{
		"cs_1": {State: payment.CheckoutCompleted, PaymentRef: "pay_1"},
	}}
	seed(t, store, "e1", "cs_1", 48*time.Hour)

	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Completed != 1 || out.Failed != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StateCompleted || e.ExternalPaymentRef != "pay_1" {
		t.Fatalf("row = %+v", e)
	}
}

func TestOnce_ExpiredSessionFailed(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{statuses: map[string]*payment.CheckoutStatus{
		"cs_1": {State: payment.CheckoutExpired},
	}}
	seed(t, store, "e1", "cs_1", 48*time.Hour)

	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Failed != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StateFailed {
		t.Fatalf("state = %s", e.State)
	}
}

func TestOnce_StillPendingAtProcessorSkipped(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{statuses: map[string]*payment.CheckoutStatus{
		"cs_1": {State: payment.CheckoutPending},
	}}
	seed(t, store, "e1", "cs_1", 48*time.Hour)

	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Local age alone never fails a row the processor still considers live.
	if out.Skipped != 1 || out.Failed != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StatePending {
		t.Fatalf("state = %s", e.State)
	}
}

func TestOnce_StatusLookupErrorSkipped(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{err: errors.New("processor down")}
	seed(t, store, "e1", "cs_1", 48*time.Hour)

	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Skipped != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StatePending {
		t.Fatalf("transient lookup error mutated the row: %s", e.State)
	}
}

func TestOnce_NoCheckoutRefSkipped(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{}
	seed(t, store, "e1", "", 48*time.Hour)

	// The ref write can fail after the session exists, so a ref-less stale
	// row must never be failed locally: its completion may still arrive.
	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Skipped != 1 || out.Failed != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	e, _ := store.GetEntitlement(context.Background(), "t1", "e1")
	if e.State != core.StatePending {
		t.Fatalf("state = %s", e.State)
	}

	// A redelivered completion still lands after the sweep.
	if _, _, err := store.MarkCompleted(context.Background(), "t1", "e1", "pay_late"); err != nil {
		t.Fatalf("late completion after sweep: %v", err)
	}
}

func TestOnce_FreshPendingUntouched(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{}
	seed(t, store, "e1", "cs_1", time.Hour) // newer than the 24h timeout

	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Examined != 0 {
		t.Fatalf("fresh pending examined: %+v", out)
	}
}

func TestOnce_MixedBatch(t *testing.T) {
	store := memory.New()
	proc := &fakeProcessor{statuses: map[string]*payment.CheckoutStatus{
		"cs_done":    {State: payment.CheckoutCompleted, PaymentRef: "pay_d"},
		"cs_expired": {State: payment.CheckoutExpired},
		"cs_live":    {State: payment.CheckoutPending},
	}}
	seed(t, store, "done", "cs_done", 48*time.Hour)
	seed(t, store, "expired", "cs_expired", 48*time.Hour)
	seed(t, store, "live", "cs_live", 48*time.Hour)
	seed(t, store, "orphan", "", 48*time.Hour)

	out, err := newSweeper(store, proc).Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Examined != 4 || out.Completed != 1 || out.Failed != 1 || out.Skipped != 2 {
		t.Fatalf("outcome = %+v", out)
	}
}
