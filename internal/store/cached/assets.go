// Package cached wraps a core.Store with a read-through cache for the asset
// catalog. Assets change rarely (admin edits only), so a short TTL keeps the
// hot paths — checkout and access issuance — off the database.
//
// Entitlement state is NEVER cached here: access decisions must observe a
// committed revocation immediately, so every entitlement read passes straight
// through to the store.
package cached

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/paygate/internal/cache"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

const defaultAssetTTL = time.Minute

// Store decorates an inner core.Store. Only the AssetStore methods are
// intercepted; everything else delegates untouched.
type Store struct {
	core.Store
	cache cache.Client
	ttl   time.Duration
}

func New(inner core.Store, c cache.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultAssetTTL
	}
	return &Store{Store: inner, cache: c, ttl: ttl}
}

func assetKey(tenantID, id string) string {
	return "asset:" + tenantID + ":" + id
}

func (s *Store) GetAsset(ctx context.Context, tenantID, id string) (*core.Asset, error) {
	key := assetKey(tenantID, id)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var a core.Asset
		if json.Unmarshal([]byte(raw), &a) == nil {
			return &a, nil
		}
		// Corrupt entry; drop it and fall through to the store.
		_ = s.cache.Delete(ctx, key)
	}

	a, err := s.Store.GetAsset(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(a); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
			logger.From(ctx).Debug("asset cache set failed", logger.Err(err))
		}
	}
	return a, nil
}

func (s *Store) CreateAsset(ctx context.Context, a *core.Asset) error {
	if err := s.Store.CreateAsset(ctx, a); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, assetKey(a.TenantID, a.ID))
	return nil
}

func (s *Store) SetAssetPublished(ctx context.Context, tenantID, id string, published bool) error {
	if err := s.Store.SetAssetPublished(ctx, tenantID, id, published); err != nil {
		return err
	}
	// Invalidate so a publish flip is visible on the next read, not after TTL.
	_ = s.cache.Delete(ctx, assetKey(tenantID, id))
	return nil
}
