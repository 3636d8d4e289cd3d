package cached

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/paygate/internal/cache"
	"github.com/dropDatabas3/paygate/internal/store/core"
	"github.com/dropDatabas3/paygate/internal/store/memory"
)

func seed(t *testing.T, inner *memory.Store) *core.Asset {
	t.Helper()
	a := &core.Asset{
		ID: "a1", TenantID: "t1", Title: "Course",
		PriceMinorUnits: 999, Currency: "EUR", Published: true,
		StorageKey: "media/a1.mp4",
	}
	if err := inner.CreateAsset(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestGetAsset_ReadThrough(t *testing.T) {
	inner := memory.New()
	c := cache.NewMemory("test:")
	s := New(inner, c, time.Minute)
	seed(t, inner)
	ctx := context.Background()

	first, err := s.GetAsset(ctx, "t1", "a1")
	if err != nil {
		t.Fatal(err)
	}

	// Mutate the inner store directly; the cached copy should still serve.
	if err := inner.SetAssetPublished(ctx, "t1", "a1", false); err != nil {
		t.Fatal(err)
	}
	second, err := s.GetAsset(ctx, "t1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Published != second.Published {
		t.Fatal("second read bypassed the cache")
	}
}

func TestSetAssetPublished_Invalidates(t *testing.T) {
	inner := memory.New()
	s := New(inner, cache.NewMemory("test:"), time.Minute)
	seed(t, inner)
	ctx := context.Background()

	if _, err := s.GetAsset(ctx, "t1", "a1"); err != nil {
		t.Fatal(err)
	}
	// Mutation through the decorator drops the cached entry.
	if err := s.SetAssetPublished(ctx, "t1", "a1", false); err != nil {
		t.Fatal(err)
	}
	a, err := s.GetAsset(ctx, "t1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Published {
		t.Fatal("publish flip not visible after invalidation")
	}
}

func TestEntitlementReadsPassThrough(t *testing.T) {
	inner := memory.New()
	s := New(inner, cache.NewMemory("test:"), time.Minute)
	ctx := context.Background()

	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1"}
	if err := s.CreatePending(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.MarkCompleted(ctx, "t1", "e1", "pay_1"); err != nil {
		t.Fatal(err)
	}
	// Every entitlement read reflects current state instantly.
	if _, err := s.FindCompleted(ctx, "t1", "u1", "a1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkRevoked(ctx, "t1", "e1", "refund", "re_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindCompleted(ctx, "t1", "u1", "a1"); err == nil {
		t.Fatal("revocation must be visible immediately")
	}
}
