// Package memory implements store.core.Store in process memory.
//
// It is the dev/test driver. Semantics mirror the Postgres adapter exactly:
// the active-uniqueness invariant, transition rules and idempotency behave
// the same, just guarded by a mutex instead of row locks and a partial
// unique index.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/paygate/internal/store/core"
)

type Store struct {
	mu           sync.Mutex
	entitlements map[string]*core.Entitlement // id -> row
	assets       map[string]*core.Asset       // tenant/id -> row
	progress     map[string]*core.PlaybackProgress

	now func() time.Time
}

func New() *Store {
	return &Store{
		entitlements: make(map[string]*core.Entitlement),
		assets:       make(map[string]*core.Asset),
		progress:     make(map[string]*core.PlaybackProgress),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

func key(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "/" + p
	}
	return out
}

func cloneEnt(e *core.Entitlement) *core.Entitlement {
	cp := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	if e.RevokedAt != nil {
		t := *e.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

// ====================== ENTITLEMENTS ======================

func (s *Store) CreatePending(ctx context.Context, e *core.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blockingExists(e.TenantID, e.SubjectID, e.AssetID) {
		return core.ErrDuplicateEntitlement
	}
	row := cloneEnt(e)
	row.State = core.StatePending
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.entitlements[row.ID] = row
	return nil
}

func (s *Store) CreateCompletedFree(ctx context.Context, e *core.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blockingExists(e.TenantID, e.SubjectID, e.AssetID) {
		return core.ErrDuplicateEntitlement
	}
	row := cloneEnt(e)
	row.State = core.StateCompleted
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	t := row.CreatedAt
	row.CompletedAt = &t
	s.entitlements[row.ID] = row

	e.State = row.State
	e.CreatedAt = row.CreatedAt
	e.CompletedAt = row.CompletedAt
	return nil
}

// blockingExists checks invariant I1 under the store mutex. The pg adapter
// gets this from a partial unique index instead.
func (s *Store) blockingExists(tenantID, subjectID, assetID string) bool {
	for _, row := range s.entitlements {
		if row.TenantID == tenantID && row.SubjectID == subjectID && row.AssetID == assetID &&
			(row.State == core.StatePending || row.State == core.StateCompleted) {
			return true
		}
	}
	return false
}

func (s *Store) GetEntitlement(ctx context.Context, tenantID, id string) (*core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.entitlements[id]
	if !ok || row.TenantID != tenantID {
		return nil, core.ErrNotFound
	}
	return cloneEnt(row), nil
}

func (s *Store) FindActive(ctx context.Context, tenantID, subjectID, assetID string) (*core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.entitlements {
		if row.TenantID == tenantID && row.SubjectID == subjectID && row.AssetID == assetID &&
			(row.State == core.StatePending || row.State == core.StateCompleted) {
			return cloneEnt(row), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) FindCompleted(ctx context.Context, tenantID, subjectID, assetID string) (*core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.entitlements {
		if row.TenantID == tenantID && row.SubjectID == subjectID && row.AssetID == assetID &&
			row.State == core.StateCompleted {
			return cloneEnt(row), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) MarkCompleted(ctx context.Context, tenantID, id, paymentRef string) (*core.Entitlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.entitlements[id]
	if !ok || row.TenantID != tenantID {
		return nil, false, core.ErrNotFound
	}

	switch row.State {
	case core.StateCompleted:
		// Redelivery path: same ref is fine, CompletedAt untouched. Not a
		// transition; the bool must stay false so side effects fire once.
		if row.ExternalPaymentRef == paymentRef {
			return cloneEnt(row), false, nil
		}
		return nil, false, core.ErrFulfillmentConflict
	case core.StatePending:
		row.State = core.StateCompleted
		row.ExternalPaymentRef = paymentRef
		t := s.now()
		row.CompletedAt = &t
		return cloneEnt(row), true, nil
	default:
		return nil, false, core.ErrInvalidTransition
	}
}

func (s *Store) MarkFailed(ctx context.Context, tenantID, id, reason string) (*core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.entitlements[id]
	if !ok || row.TenantID != tenantID {
		return nil, core.ErrNotFound
	}
	if row.State != core.StatePending {
		// Same-outcome redelivery is not an error.
		if row.State == core.StateFailed && row.FailureReason == reason {
			return cloneEnt(row), nil
		}
		return nil, core.ErrInvalidTransition
	}
	row.State = core.StateFailed
	row.FailureReason = reason
	return cloneEnt(row), nil
}

func (s *Store) MarkRevoked(ctx context.Context, tenantID, id, reason, refundRef string) (*core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.entitlements[id]
	if !ok || row.TenantID != tenantID {
		return nil, core.ErrNotFound
	}

	switch row.State {
	case core.StateRevoked:
		if row.ExternalRefundRef == refundRef {
			return cloneEnt(row), nil
		}
		return nil, core.ErrInvalidTransition
	case core.StateCompleted:
		row.State = core.StateRevoked
		row.RevocationReason = reason
		row.ExternalRefundRef = refundRef
		t := s.now()
		row.RevokedAt = &t
		return cloneEnt(row), nil
	default:
		return nil, core.ErrInvalidTransition
	}
}

func (s *Store) SetCheckoutRef(ctx context.Context, tenantID, id, checkoutRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.entitlements[id]
	if !ok || row.TenantID != tenantID {
		return core.ErrNotFound
	}
	row.ExternalCheckoutRef = checkoutRef
	return nil
}

func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Entitlement
	for _, row := range s.entitlements {
		if row.State == core.StatePending && row.CreatedAt.Before(olderThan) {
			out = append(out, *cloneEnt(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ====================== ASSETS ======================

func (s *Store) CreateAsset(ctx context.Context, a *core.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(a.TenantID, a.ID)
	if _, ok := s.assets[k]; ok {
		return core.ErrDuplicateAsset
	}
	cp := *a
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.assets[k] = &cp
	return nil
}

func (s *Store) GetAsset(ctx context.Context, tenantID, id string) (*core.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.assets[key(tenantID, id)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *Store) ListAssets(ctx context.Context, tenantID string) ([]core.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Asset
	for _, row := range s.assets {
		if row.TenantID == tenantID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetAssetPublished(ctx context.Context, tenantID, id string, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.assets[key(tenantID, id)]
	if !ok {
		return core.ErrNotFound
	}
	row.Published = published
	return nil
}

// ====================== PROGRESS ======================

func (s *Store) UpsertProgress(ctx context.Context, p *core.PlaybackProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	if cp.LastObservedAt.IsZero() {
		cp.LastObservedAt = s.now()
	}
	s.progress[key(p.TenantID, p.SubjectID, p.AssetID)] = &cp
	return nil
}

func (s *Store) GetProgress(ctx context.Context, tenantID, subjectID, assetID string) (*core.PlaybackProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.progress[key(tenantID, subjectID, assetID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *row
	return &cp, nil
}
