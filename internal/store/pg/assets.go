package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/paygate/internal/store/core"
)

const assetCols = `id, tenant_id, title, price_minor_units, currency, published, storage_key, duration_seconds, created_at`

func scanAsset(row pgx.Row) (*core.Asset, error) {
	var a core.Asset
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.Title, &a.PriceMinorUnits, &a.Currency,
		&a.Published, &a.StorageKey, &a.DurationSeconds, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAsset(ctx context.Context, a *core.Asset) error {
	const q = `
		INSERT INTO asset (id, tenant_id, title, price_minor_units, currency, published, storage_key, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := s.pool.QueryRow(ctx, q,
		a.ID, a.TenantID, a.Title, a.PriceMinorUnits, a.Currency, a.Published, a.StorageKey, a.DurationSeconds,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateAsset
		}
		return fmt.Errorf("pg: create asset: %w", err)
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, tenantID, id string) (*core.Asset, error) {
	q := `SELECT ` + assetCols + ` FROM asset WHERE id = $1 AND tenant_id = $2`
	return scanAsset(s.pool.QueryRow(ctx, q, id, tenantID))
}

func (s *Store) ListAssets(ctx context.Context, tenantID string) ([]core.Asset, error) {
	q := `SELECT ` + assetCols + ` FROM asset WHERE tenant_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) SetAssetPublished(ctx context.Context, tenantID, id string, published bool) error {
	const q = `UPDATE asset SET published = $3 WHERE id = $1 AND tenant_id = $2`
	tag, err := s.pool.Exec(ctx, q, id, tenantID, published)
	if err != nil {
		return fmt.Errorf("pg: set published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
