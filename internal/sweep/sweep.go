// Package sweep reclaims abandoned pending entitlements.
//
// A pending row older than the timeout is never failed on local age alone:
// the processor is asked first, so a slow-but-legitimate completion can
// still win. Only a terminal processor answer (expired/canceled) fails the
// row; a late completion completes it.
package sweep

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/payment"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

type Config struct {
	// PendingTimeout is how old a pending row must be before the sweep
	// looks at it. Generous on purpose (default 24h).
	PendingTimeout time.Duration

	// Interval between runs when driven by Run.
	Interval time.Duration

	// BatchLimit caps rows per run.
	BatchLimit int

	// Parallelism bounds concurrent processor lookups.
	Parallelism int
}

func (c Config) withDefaults() Config {
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 200
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	return c
}

type Sweeper struct {
	store        core.EntitlementStore
	entitlements *entitlement.Service
	processor    payment.Client
	cfg          Config
	now          func() time.Time
}

func New(store core.EntitlementStore, svc *entitlement.Service, processor payment.Client, cfg Config) *Sweeper {
	return &Sweeper{
		store:        store,
		entitlements: svc,
		processor:    processor,
		cfg:          cfg.withDefaults(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Outcome summarizes one sweep run.
type Outcome struct {
	Examined  int
	Completed int
	Failed    int
	Skipped   int
}

// Run loops until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.Named("sweep")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out, err := s.Once(ctx)
			if err != nil {
				log.Warn("sweep run failed", logger.Err(err))
				continue
			}
			if out.Examined > 0 {
				log.Info("sweep run done",
					logger.Int("examined", out.Examined),
					logger.Int("completed", out.Completed),
					logger.Int("failed", out.Failed),
					logger.Int("skipped", out.Skipped))
			}
		}
	}
}

// Once performs a single sweep pass.
func (s *Sweeper) Once(ctx context.Context) (*Outcome, error) {
	cutoff := s.now().Add(-s.cfg.PendingTimeout)
	stale, err := s.store.ListStalePending(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Examined: len(stale)}
	if len(stale) == 0 {
		return out, nil
	}

	var completed, failed, skipped int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	results := make([]string, len(stale))
	for idx := range stale {
		idx := idx
		row := stale[idx]
		g.Go(func() error {
			results[idx] = s.resolve(gctx, &row)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r {
		case "completed":
			completed++
		case "failed":
			failed++
		default:
			skipped++
		}
	}
	out.Completed = int(completed)
	out.Failed = int(failed)
	out.Skipped = int(skipped)
	return out, nil
}

// resolve decides one stale pending row. Returns "completed", "failed" or
// "skipped".
func (s *Sweeper) resolve(ctx context.Context, row *core.Entitlement) string {
	log := logger.Named("sweep").With(
		logger.EntitlementID(row.ID),
		logger.TenantID(row.TenantID))

	// A missing session ref is ambiguous: the ref write can fail after the
	// session was created, and that session may still complete via a
	// redelivered notification. Failing here would turn that late completion
	// into an invalid transition and lose a paid grant, so the row is left
	// alone and flagged for an operator.
	if row.ExternalCheckoutRef == "" {
		log.Warn("stale pending without checkout ref, needs manual review")
		return "skipped"
	}

	status, err := s.processor.Status(ctx, row.ExternalCheckoutRef)
	if err != nil {
		// Transient: leave the row for the next run rather than risk racing
		// a legitimate notification.
		log.Warn("processor status lookup failed", logger.Err(err))
		return "skipped"
	}

	switch status.State {
	case payment.CheckoutCompleted:
		// The notification was lost or is still in flight; apply it here.
		if _, _, err := s.entitlements.MarkCompleted(ctx, row.TenantID, row.ID, status.PaymentRef); err != nil {
			log.Warn("late completion failed", logger.Err(err))
			return "skipped"
		}
		log.Info("late completion applied", logger.PaymentRef(status.PaymentRef))
		return "completed"
	case payment.CheckoutExpired:
		if _, err := s.entitlements.MarkFailed(ctx, row.TenantID, row.ID, "checkout expired"); err != nil && !errors.Is(err, core.ErrInvalidTransition) {
			log.Warn("mark failed errored", logger.Err(err))
			return "skipped"
		}
		return "failed"
	default:
		// Still pending at the processor. Not ours to decide.
		return "skipped"
	}
}
