// Package progress records per-subject, per-asset playback resume points.
//
// Every report is treated as the newest truth: last write wins by wall-clock
// arrival. Out-of-order delivery only rewinds the displayed resume point,
// which is harmless, so there is no merge logic.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// ErrNoEntitlement: progress reports are gated on a completed entitlement.
// Defense in depth; the signed delivery edge is the primary gate.
var ErrNoEntitlement = errors.New("no active entitlement for asset")

type Tracker struct {
	store        core.ProgressStore
	entitlements *entitlement.Service
}

func NewTracker(store core.ProgressStore, svc *entitlement.Service) *Tracker {
	return &Tracker{store: store, entitlements: svc}
}

// Record upserts the resume point. Completed flips to true once
// position/duration crosses the watched threshold; it is recomputed on every
// call from the reported values, never accumulated.
func (t *Tracker) Record(ctx context.Context, tenantID, subjectID, assetID string, positionSeconds, durationSeconds float64) error {
	if positionSeconds < 0 || durationSeconds < 0 {
		return fmt.Errorf("negative position or duration")
	}

	ok, err := t.entitlements.HasActive(ctx, tenantID, subjectID, assetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoEntitlement
	}

	completed := durationSeconds > 0 && positionSeconds/durationSeconds > core.ProgressCompletedRatio

	return t.store.UpsertProgress(ctx, &core.PlaybackProgress{
		TenantID:        tenantID,
		SubjectID:       subjectID,
		AssetID:         assetID,
		PositionSeconds: positionSeconds,
		DurationSeconds: durationSeconds,
		Completed:       completed,
	})
}

// Position returns the saved resume point, or 0 when none exists. Absence is
// a normal state, never an error.
func (t *Tracker) Position(ctx context.Context, tenantID, subjectID, assetID string) (float64, error) {
	p, err := t.store.GetProgress(ctx, tenantID, subjectID, assetID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.PositionSeconds, nil
}
