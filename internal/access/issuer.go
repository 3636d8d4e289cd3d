// Package access mints time-boxed signed references to asset storage
// locations. A reference is a capability: holding it grants read access to
// exactly one asset until expiry, nothing more.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// ErrAccessDenied carries no detail by design: callers cannot distinguish
// "never purchased", "refunded" and "asset missing".
var ErrAccessDenied = errors.New("access denied")

// Resolver maps an asset to the underlying storage location that gets
// wrapped in the signed reference.
type Resolver interface {
	ResolveLocation(ctx context.Context, asset *core.Asset) (string, error)
}

// BaseURLResolver joins a delivery base URL with the asset's storage key.
type BaseURLResolver struct {
	Base string
}

func (r *BaseURLResolver) ResolveLocation(ctx context.Context, asset *core.Asset) (string, error) {
	if asset.StorageKey == "" {
		return "", fmt.Errorf("asset %s has no storage key", asset.ID)
	}
	return fmt.Sprintf("%s/%s", trimSlash(r.Base), asset.StorageKey), nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Grant is an issued capability.
type Grant struct {
	URL       string
	ExpiresAt time.Time
}

// Issuer evaluates the access predicate and signs capabilities.
//
// The grant decision is never cached beyond a single request: every call
// re-reads current entitlement state, so a committed revocation denies the
// very next issuance. Already-issued, unexpired references stay valid until
// their own expiry — the documented bounded-exposure tradeoff.
type Issuer struct {
	entitlements *entitlement.Service
	store        core.AssetStore
	resolver     Resolver
	keys         *KeySet
	ttl          time.Duration
	now          func() time.Time
}

func NewIssuer(svc *entitlement.Service, store core.AssetStore, resolver Resolver, keys *KeySet, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		// long enough for a viewing session with margin, short enough to
		// bound exposure
		ttl = time.Hour
	}
	return &Issuer{
		entitlements: svc,
		store:        store,
		resolver:     resolver,
		keys:         keys,
		ttl:          ttl,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Test hook.
func (i *Issuer) SetClock(now func() time.Time) { i.now = now }

// Issue checks hasActiveEntitlement and, if it holds, returns a signed
// time-boxed URL for the asset. Every failure path collapses to
// ErrAccessDenied except genuine infrastructure errors.
func (i *Issuer) Issue(ctx context.Context, tenantID, subjectID, assetID string) (*Grant, error) {
	ok, err := i.entitlements.HasActive(ctx, tenantID, subjectID, assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}

	asset, err := i.store.GetAsset(ctx, tenantID, assetID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}

	loc, err := i.resolver.ResolveLocation(ctx, asset)
	if err != nil {
		return nil, err
	}

	now := i.now()
	exp := now.Add(i.ttl)

	claims := jwtv5.MapClaims{
		"sub":   subjectID,
		"tid":   tenantID,
		"asset": assetID,
		"loc":   asset.StorageKey,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.keys.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.keys.Priv)
	if err != nil {
		return nil, fmt.Errorf("access: sign capability: %w", err)
	}

	return &Grant{
		URL:       loc + "?token=" + url.QueryEscape(signed),
		ExpiresAt: exp,
	}, nil
}

// VerifyToken parses a capability token and returns its claims. Used by the
// delivery edge (or its tests) to validate inbound media requests.
func (i *Issuer) VerifyToken(raw string) (jwtv5.MapClaims, error) {
	claims := jwtv5.MapClaims{}
	tk, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		return i.keys.Pub, nil
	}, jwtv5.WithValidMethods([]string{"EdDSA"}), jwtv5.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if !tk.Valid {
		return nil, ErrAccessDenied
	}
	return claims, nil
}
