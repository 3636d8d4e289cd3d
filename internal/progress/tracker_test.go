package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/store/core"
	"github.com/dropDatabas3/paygate/internal/store/memory"
)

func setup(t *testing.T) (*Tracker, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewTracker(store, entitlement.NewService(store)), store
}

func complete(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1"}
	if err := store.CreatePending(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.MarkCompleted(ctx, "t1", "e1", "pay_1"); err != nil {
		t.Fatal(err)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	tr, store := setup(t)
	complete(t, store)
	ctx := context.Background()

	if err := tr.Record(ctx, "t1", "u1", "a1", 120, 600); err != nil {
		t.Fatal(err)
	}
	pos, err := tr.Position(ctx, "t1", "u1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if pos != 120 {
		t.Fatalf("position = %v", pos)
	}

	// Out-of-order rewind still wins: last write is the newest truth.
	if err := tr.Record(ctx, "t1", "u1", "a1", 60, 600); err != nil {
		t.Fatal(err)
	}
	pos, _ = tr.Position(ctx, "t1", "u1", "a1")
	if pos != 60 {
		t.Fatalf("position = %v, want 60", pos)
	}
}

func TestRecord_RequiresEntitlement(t *testing.T) {
	tr, _ := setup(t)
	err := tr.Record(context.Background(), "t1", "u1", "a1", 10, 600)
	if !errors.Is(err, ErrNoEntitlement) {
		t.Fatalf("want ErrNoEntitlement, got %v", err)
	}
}

func TestRecord_RejectsNegatives(t *testing.T) {
	tr, store := setup(t)
	complete(t, store)
	ctx := context.Background()

	if err := tr.Record(ctx, "t1", "u1", "a1", -1, 600); err == nil {
		t.Fatal("negative position must be rejected")
	}
	if err := tr.Record(ctx, "t1", "u1", "a1", 10, -1); err == nil {
		t.Fatal("negative duration must be rejected")
	}
}

func TestRecord_CompletedThreshold(t *testing.T) {
	tr, store := setup(t)
	complete(t, store)
	ctx := context.Background()

	cases := []struct {
		pos, dur  float64
		completed bool
	}{
		{569, 600, false}, // 0.948...
		{570, 600, false}, // exactly 0.95, threshold is strict
		{571, 600, true},  // 0.9516...
		{600, 600, true},
		{10, 0, false}, // unknown duration never completes
	}
	for _, c := range cases {
		if err := tr.Record(ctx, "t1", "u1", "a1", c.pos, c.dur); err != nil {
			t.Fatal(err)
		}
		p, err := store.GetProgress(ctx, "t1", "u1", "a1")
		if err != nil {
			t.Fatal(err)
		}
		if p.Completed != c.completed {
			t.Fatalf("pos=%v dur=%v: completed=%v, want %v", c.pos, c.dur, p.Completed, c.completed)
		}
	}
}

func TestPosition_ZeroWhenAbsent(t *testing.T) {
	tr, _ := setup(t)
	pos, err := tr.Position(context.Background(), "t1", "u1", "a1")
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if pos != 0 {
		t.Fatalf("position = %v, want 0", pos)
	}
}

func TestPosition_SurvivesRevocation(t *testing.T) {
	tr, store := setup(t)
	complete(t, store)
	ctx := context.Background()

	if err := tr.Record(ctx, "t1", "u1", "a1", 300, 600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkRevoked(ctx, "t1", "e1", "refund", "re_1"); err != nil {
		t.Fatal(err)
	}

	// The resume point is history, not an access grant; it outlives the
	// entitlement so a repurchase resumes where the subject left off.
	pos, err := tr.Position(ctx, "t1", "u1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if pos != 300 {
		t.Fatalf("position = %v, want 300", pos)
	}

	// New writes are gated again.
	if err := tr.Record(ctx, "t1", "u1", "a1", 400, 600); !errors.Is(err, ErrNoEntitlement) {
		t.Fatalf("record after revocation: want ErrNoEntitlement, got %v", err)
	}
}
