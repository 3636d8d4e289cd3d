package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/paygate/internal/store/core"
)

func (s *Store) CreatePending(ctx context.Context, e *core.Entitlement) error {
	const q = `
		INSERT INTO entitlement (id, tenant_id, subject_id, asset_id, amount_minor_units, currency, state)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING created_at`
	err := s.pool.QueryRow(ctx, q,
		e.ID, e.TenantID, e.SubjectID, e.AssetID, e.AmountMinorUnits, e.Currency,
	).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateEntitlement
		}
		return fmt.Errorf("pg: create pending: %w", err)
	}
	e.State = core.StatePending
	return nil
}

// CreateCompletedFree inserts an already-completed row in one statement:
// there is no observable pending window for free grants.
func (s *Store) CreateCompletedFree(ctx context.Context, e *core.Entitlement) error {
	const q = `
		INSERT INTO entitlement (id, tenant_id, subject_id, asset_id, amount_minor_units, currency, state, completed_at)
		VALUES ($1, $2, $3, $4, 0, $5, 'completed', now())
		RETURNING created_at, completed_at`
	err := s.pool.QueryRow(ctx, q,
		e.ID, e.TenantID, e.SubjectID, e.AssetID, e.Currency,
	).Scan(&e.CreatedAt, &e.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateEntitlement
		}
		return fmt.Errorf("pg: create free grant: %w", err)
	}
	e.State = core.StateCompleted
	e.AmountMinorUnits = 0
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, tenantID, id string) (*core.Entitlement, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement WHERE id = $1 AND tenant_id = $2`
	return scanEntitlement(s.pool.QueryRow(ctx, q, id, tenantID))
}

func (s *Store) FindActive(ctx context.Context, tenantID, subjectID, assetID string) (*core.Entitlement, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement
		WHERE tenant_id = $1 AND subject_id = $2 AND asset_id = $3
		  AND state IN ('pending', 'completed')
		LIMIT 1`
	return scanEntitlement(s.pool.QueryRow(ctx, q, tenantID, subjectID, assetID))
}

func (s *Store) FindCompleted(ctx context.Context, tenantID, subjectID, assetID string) (*core.Entitlement, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement
		WHERE tenant_id = $1 AND subject_id = $2 AND asset_id = $3 AND state = 'completed'
		LIMIT 1`
	return scanEntitlement(s.pool.QueryRow(ctx, q, tenantID, subjectID, assetID))
}

// lockEntitlement loads the row FOR UPDATE inside tx. Concurrent transitions
// for the same id serialize here.
func lockEntitlement(ctx context.Context, tx pgx.Tx, tenantID, id string) (*core.Entitlement, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	return scanEntitlement(tx.QueryRow(ctx, q, id, tenantID))
}

func (s *Store) MarkCompleted(ctx context.Context, tenantID, id, paymentRef string) (*core.Entitlement, bool, error) {
	var out *core.Entitlement
	var moved bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row, err := lockEntitlement(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		switch row.State {
		case core.StateCompleted:
			if row.ExternalPaymentRef == paymentRef {
				out = row // redelivery, CompletedAt stays as-is, moved stays false
				return nil
			}
			return core.ErrFulfillmentConflict
		case core.StatePending:
			const upd = `UPDATE entitlement
				SET state = 'completed', external_payment_ref = $3, completed_at = now()
				WHERE id = $1 AND tenant_id = $2
				RETURNING completed_at`
			var completedAt time.Time
			if err := tx.QueryRow(ctx, upd, id, tenantID, paymentRef).Scan(&completedAt); err != nil {
				return fmt.Errorf("pg: mark completed: %w", err)
			}
			row.State = core.StateCompleted
			row.ExternalPaymentRef = paymentRef
			row.CompletedAt = &completedAt
			out = row
			moved = true
			return nil
		default:
			return core.ErrInvalidTransition
		}
	})
	return out, moved, err
}

func (s *Store) MarkFailed(ctx context.Context, tenantID, id, reason string) (*core.Entitlement, error) {
	var out *core.Entitlement
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row, err := lockEntitlement(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if row.State != core.StatePending {
			if row.State == core.StateFailed && row.FailureReason == reason {
				out = row
				return nil
			}
			return core.ErrInvalidTransition
		}
		const upd = `UPDATE entitlement SET state = 'failed', failure_reason = $3
			WHERE id = $1 AND tenant_id = $2`
		if _, err := tx.Exec(ctx, upd, id, tenantID, reason); err != nil {
			return fmt.Errorf("pg: mark failed: %w", err)
		}
		row.State = core.StateFailed
		row.FailureReason = reason
		out = row
		return nil
	})
	return out, err
}

func (s *Store) MarkRevoked(ctx context.Context, tenantID, id, reason, refundRef string) (*core.Entitlement, error) {
	var out *core.Entitlement
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row, err := lockEntitlement(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		switch row.State {
		case core.StateRevoked:
			if row.ExternalRefundRef == refundRef {
				out = row
				return nil
			}
			return core.ErrInvalidTransition
		case core.StateCompleted:
			const upd = `UPDATE entitlement
				SET state = 'revoked', revocation_reason = $3, external_refund_ref = $4, revoked_at = now()
				WHERE id = $1 AND tenant_id = $2
				RETURNING revoked_at`
			var revokedAt time.Time
			if err := tx.QueryRow(ctx, upd, id, tenantID, reason, refundRef).Scan(&revokedAt); err != nil {
				return fmt.Errorf("pg: mark revoked: %w", err)
			}
			row.State = core.StateRevoked
			row.RevocationReason = reason
			row.ExternalRefundRef = refundRef
			row.RevokedAt = &revokedAt
			out = row
			return nil
		default:
			return core.ErrInvalidTransition
		}
	})
	return out, err
}

func (s *Store) SetCheckoutRef(ctx context.Context, tenantID, id, checkoutRef string) error {
	const q = `UPDATE entitlement SET external_checkout_ref = $3 WHERE id = $1 AND tenant_id = $2`
	tag, err := s.pool.Exec(ctx, q, id, tenantID, checkoutRef)
	if err != nil {
		return fmt.Errorf("pg: set checkout ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]core.Entitlement, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement
		WHERE state = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
