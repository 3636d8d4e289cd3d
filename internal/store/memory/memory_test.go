package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/paygate/internal/store/core"
)

func newPending(id string) *core.Entitlement {
	return &core.Entitlement{
		ID:               id,
		TenantID:         "t1",
		SubjectID:        "buyer@example.com",
		AssetID:          "asset-1",
		AmountMinorUnits: 999,
		Currency:         "EUR",
	}
}

func TestCreatePending_ConcurrentSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := newPending("e-" + strconv.Itoa(i))
			errs[i] = s.CreatePending(ctx, e)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, core.ErrDuplicateEntitlement):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("want exactly 1 winner, got %d (dup=%d)", ok, dup)
	}
}

func TestCreatePending_BlockedByCompleted(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreatePending(ctx, newPending("e2")); !errors.Is(err, core.ErrDuplicateEntitlement) {
		t.Fatalf("want ErrDuplicateEntitlement, got %v", err)
	}
}

func TestCreatePending_AllowedAfterFailedAndRevoked(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkFailed(ctx, "t1", "e1", "declined"); err != nil {
		t.Fatal(err)
	}
	// A failed row does not block a retry.
	if err := s.CreatePending(ctx, newPending("e2")); err != nil {
		t.Fatalf("retry after failed should succeed: %v", err)
	}
	if _, _, err := s.MarkCompleted(ctx, "t1", "e2", "pay_2"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkRevoked(ctx, "t1", "e2", "refund", "re_1"); err != nil {
		t.Fatal(err)
	}
	// Nor does a revoked one: repurchase is allowed.
	if err := s.CreatePending(ctx, newPending("e3")); err != nil {
		t.Fatalf("repurchase after revoked should succeed: %v", err)
	}
}

func TestMarkCompleted_IdempotentRedelivery(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}
	first, moved, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1")
	if err != nil {
		t.Fatal(err)
	}
	if !moved {
		t.Fatal("first completion must report the transition")
	}

	// Redelivery arrives later; CompletedAt must not move.
	s.SetClock(func() time.Time { return base.Add(time.Hour) })
	second, moved, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1")
	if err != nil {
		t.Fatalf("redelivery must not error: %v", err)
	}
	if moved {
		t.Fatal("redelivery must not report a transition")
	}
	if !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Fatalf("CompletedAt moved on redelivery: %v vs %v", first.CompletedAt, second.CompletedAt)
	}
	if second.State != core.StateCompleted {
		t.Fatalf("state = %s", second.State)
	}
}

func TestMarkCompleted_ConcurrentRedeliverySingleTransition(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}

	// The same completion delivered n times at once: every call succeeds,
	// exactly one reports the transition.
	const n = 16
	var wg sync.WaitGroup
	movedFlags := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, moved, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1")
			movedFlags[i] = moved
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var transitions int
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d errored: %v", i, errs[i])
		}
		if movedFlags[i] {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("want exactly 1 transition, got %d", transitions)
	}
}

func TestMarkCompleted_ConflictingPaymentRef(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.MarkCompleted(ctx, "t1", "e1", "pay_other"); !errors.Is(err, core.ErrFulfillmentConflict) {
		t.Fatalf("want ErrFulfillmentConflict, got %v", err)
	}
}

func TestTransitions_Invalid(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkRevoked(ctx, "t1", "e1", "x", "re"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("pending -> revoked must fail, got %v", err)
	}
	if _, err := s.MarkFailed(ctx, "t1", "e1", "declined"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("failed -> completed must fail, got %v", err)
	}
	if _, err := s.MarkRevoked(ctx, "t1", "e1", "x", "re"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("failed -> revoked must fail, got %v", err)
	}
}

func TestCreateCompletedFree_SingleStep(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := newPending("e1")
	e.AmountMinorUnits = 0
	if err := s.CreateCompletedFree(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.State != core.StateCompleted || e.CompletedAt == nil {
		t.Fatalf("free grant not completed: state=%s completedAt=%v", e.State, e.CompletedAt)
	}
	if e.ExternalPaymentRef != "" {
		t.Fatalf("free grant must have no payment ref")
	}
	if _, err := s.FindCompleted(ctx, "t1", "buyer@example.com", "asset-1"); err != nil {
		t.Fatalf("FindCompleted: %v", err)
	}
}

func TestListStalePending(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	old := newPending("old")
	if err := s.CreatePending(ctx, old); err != nil {
		t.Fatal(err)
	}

	s.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	fresh := newPending("fresh")
	fresh.SubjectID = "other@example.com"
	if err := s.CreatePending(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	rows, err := s.ListStalePending(ctx, base.Add(24*time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != "old" {
		t.Fatalf("want only the old row, got %+v", rows)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreatePending(ctx, newPending("e1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetEntitlement(ctx, "t2", "e1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("cross-tenant read must be not found, got %v", err)
	}
	// Same subject+asset under another tenant is a distinct tuple.
	other := newPending("e2")
	other.TenantID = "t2"
	if err := s.CreatePending(ctx, other); err != nil {
		t.Fatalf("same tuple in another tenant must be allowed: %v", err)
	}
}

func TestCreateAsset_DuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := &core.Asset{ID: "a1", TenantID: "t1", Title: "Course", StorageKey: "media/a1.mp4"}
	if err := s.CreateAsset(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAsset(ctx, a); !errors.Is(err, core.ErrDuplicateAsset) {
		t.Fatalf("want ErrDuplicateAsset, got %v", err)
	}
}

func TestProgress_UpsertAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetProgress(ctx, "t1", "u1", "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	p := &core.PlaybackProgress{TenantID: "t1", SubjectID: "u1", AssetID: "a1", PositionSeconds: 120, DurationSeconds: 600}
	if err := s.UpsertProgress(ctx, p); err != nil {
		t.Fatal(err)
	}
	// Last write wins, even going backwards.
	p.PositionSeconds = 60
	if err := s.UpsertProgress(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetProgress(ctx, "t1", "u1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PositionSeconds != 60 {
		t.Fatalf("position = %v, want 60", got.PositionSeconds)
	}
}
