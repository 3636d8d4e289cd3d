package access

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/store/core"
	"github.com/dropDatabas3/paygate/internal/store/memory"
)

func setup(t *testing.T) (*Issuer, *memory.Store) {
	t.Helper()
	store := memory.New()
	keys, err := NewEphemeralKeySet("test-1")
	if err != nil {
		t.Fatal(err)
	}
	issuer := NewIssuer(entitlement.NewService(store), store,
		&BaseURLResolver{Base: "https://media.example.com/"}, keys, time.Hour)

	if err := store.CreateAsset(context.Background(), &core.Asset{
		ID: "a1", TenantID: "t1", Title: "Course",
		PriceMinorUnits: 999, Currency: "EUR", Published: true,
		StorageKey: "media/a1.mp4",
	}); err != nil {
		t.Fatal(err)
	}
	return issuer, store
}

func grantCompleted(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1", AmountMinorUnits: 999, Currency: "EUR"}
	if err := store.CreatePending(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.MarkCompleted(ctx, "t1", "e1", "pay_1"); err != nil {
		t.Fatal(err)
	}
}

func TestIssue_GrantedWithCompletedEntitlement(t *testing.T) {
	issuer, store := setup(t)
	grantCompleted(t, store)

	grant, err := issuer.Issue(context.Background(), "t1", "u1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(grant.URL, "https://media.example.com/media/a1.mp4?token=") {
		t.Fatalf("url = %s", grant.URL)
	}

	// The embedded token verifies and carries the binding claims.
	u, err := url.Parse(grant.URL)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := issuer.VerifyToken(u.Query().Get("token"))
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims["sub"] != "u1" || claims["tid"] != "t1" || claims["asset"] != "a1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestIssue_DeniedWithoutEntitlement(t *testing.T) {
	issuer, _ := setup(t)
	if _, err := issuer.Issue(context.Background(), "t1", "u1", "a1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("want ErrAccessDenied, got %v", err)
	}
}

func TestIssue_DeniedWhilePending(t *testing.T) {
	issuer, store := setup(t)
	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "a1"}
	if err := store.CreatePending(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Issue(context.Background(), "t1", "u1", "a1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("pending must not grant, got %v", err)
	}
}

func TestIssue_DeniedImmediatelyAfterRevocation(t *testing.T) {
	issuer, store := setup(t)
	grantCompleted(t, store)
	ctx := context.Background()

	if _, err := issuer.Issue(ctx, "t1", "u1", "a1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkRevoked(ctx, "t1", "e1", "refund", "re_1"); err != nil {
		t.Fatal(err)
	}
	// No caching: the very next issuance observes the revocation.
	if _, err := issuer.Issue(ctx, "t1", "u1", "a1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("post-revocation issuance must deny, got %v", err)
	}
}

func TestIssue_DeniedForUnknownAsset(t *testing.T) {
	issuer, store := setup(t)
	ctx := context.Background()
	// Entitlement exists but the asset record is gone: still a uniform denial.
	e := &core.Entitlement{ID: "e1", TenantID: "t1", SubjectID: "u1", AssetID: "ghost"}
	if err := store.CreatePending(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.MarkCompleted(ctx, "t1", "e1", "pay_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Issue(ctx, "t1", "u1", "ghost"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("want ErrAccessDenied, got %v", err)
	}
}

func TestVerifyToken_ExpiredAfterTTL(t *testing.T) {
	issuer, store := setup(t)
	grantCompleted(t, store)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.SetClock(func() time.Time { return base })

	grant, err := issuer.Issue(context.Background(), "t1", "u1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if !grant.ExpiresAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expiry = %v", grant.ExpiresAt)
	}

	u, _ := url.Parse(grant.URL)
	token := u.Query().Get("token")

	// Still valid just before expiry, rejected just after.
	issuer.SetClock(func() time.Time { return base.Add(59 * time.Minute) })
	if _, err := issuer.VerifyToken(token); err != nil {
		t.Fatalf("token should still verify: %v", err)
	}
	issuer.SetClock(func() time.Time { return base.Add(61 * time.Minute) })
	if _, err := issuer.VerifyToken(token); err == nil {
		t.Fatal("expired token must not verify")
	}
}

func TestVerifyToken_RejectsForeignKey(t *testing.T) {
	issuer, store := setup(t)
	grantCompleted(t, store)

	grant, err := issuer.Issue(context.Background(), "t1", "u1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(grant.URL)
	token := u.Query().Get("token")

	otherKeys, err := NewEphemeralKeySet("other")
	if err != nil {
		t.Fatal(err)
	}
	other := NewIssuer(nil, nil, nil, otherKeys, time.Hour)
	if _, err := other.VerifyToken(token); err == nil {
		t.Fatal("token signed with a different key must not verify")
	}
}
