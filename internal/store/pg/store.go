// Package pg implements store/core.Store on PostgreSQL via pgxpool.
//
// State transitions run inside a transaction with a row lock, so two
// concurrent deliveries for the same entitlement are linearized by the
// database. Active-uniqueness (one pending/completed row per tuple) is a
// partial unique index, not an application pre-check.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

type Store struct{ pool *pgxpool.Pool }

// Tuning mirrors the storage.postgres config block.
type Tuning struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, t Tuning) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}

	if t.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(t.MaxOpenConns)
	}
	// MaxIdleConns maps to MinConns in pgxpool terms.
	if t.MaxIdleConns > 0 {
		pcfg.MinConns = int32(t.MaxIdleConns)
	}
	if t.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(t.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	// Non-blocking startup: the app may come up while the DB is still
	// warming; readiness is reported via /readyz.
	if err := pool.Ping(ctx); err != nil {
		logger.Named("pg").Warn("startup ping failed", logger.Err(err))
	} else {
		logger.Named("pg").Info("pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool (metrics, migrations).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// isUniqueViolation reports whether err is SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const entitlementCols = `id, tenant_id, subject_id, asset_id, amount_minor_units, currency, state,
	external_checkout_ref, external_payment_ref, external_refund_ref,
	failure_reason, revocation_reason, created_at, completed_at, revoked_at`

func scanEntitlement(row pgx.Row) (*core.Entitlement, error) {
	var e core.Entitlement
	var state string
	if err := row.Scan(
		&e.ID, &e.TenantID, &e.SubjectID, &e.AssetID, &e.AmountMinorUnits, &e.Currency, &state,
		&e.ExternalCheckoutRef, &e.ExternalPaymentRef, &e.ExternalRefundRef,
		&e.FailureReason, &e.RevocationReason, &e.CreatedAt, &e.CompletedAt, &e.RevokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	e.State = core.EntitlementState(state)
	return &e, nil
}
