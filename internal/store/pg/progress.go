package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/paygate/internal/store/core"
)

func (s *Store) UpsertProgress(ctx context.Context, p *core.PlaybackProgress) error {
	const q = `
		INSERT INTO playback_progress (tenant_id, subject_id, asset_id, position_seconds, duration_seconds, completed, last_observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, subject_id, asset_id) DO UPDATE SET
			position_seconds = EXCLUDED.position_seconds,
			duration_seconds = EXCLUDED.duration_seconds,
			completed        = EXCLUDED.completed,
			last_observed_at = now()
		RETURNING last_observed_at`
	err := s.pool.QueryRow(ctx, q,
		p.TenantID, p.SubjectID, p.AssetID, p.PositionSeconds, p.DurationSeconds, p.Completed,
	).Scan(&p.LastObservedAt)
	if err != nil {
		return fmt.Errorf("pg: upsert progress: %w", err)
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, tenantID, subjectID, assetID string) (*core.PlaybackProgress, error) {
	const q = `
		SELECT tenant_id, subject_id, asset_id, position_seconds, duration_seconds, completed, last_observed_at
		FROM playback_progress
		WHERE tenant_id = $1 AND subject_id = $2 AND asset_id = $3`
	var p core.PlaybackProgress
	err := s.pool.QueryRow(ctx, q, tenantID, subjectID, assetID).Scan(
		&p.TenantID, &p.SubjectID, &p.AssetID, &p.PositionSeconds, &p.DurationSeconds, &p.Completed, &p.LastObservedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
