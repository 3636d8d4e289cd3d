// Package fulfillment consumes the payment processor's push notifications
// and drives pending entitlements to completed or failed.
//
// Order of operations is fixed: authenticate, route, transition, then side
// effects. The store makes transitions idempotent, so arbitrary redelivery
// needs no dedup table here.
package fulfillment

import (
	"context"
	"errors"

	"github.com/dropDatabas3/paygate/internal/entitlement"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

type Processor struct {
	verifier     *Verifier
	entitlements *entitlement.Service
	notifier     Notifier
	retry        RetryPolicy

	// notifyAsync=false makes tests deterministic.
	notifyAsync bool
}

func NewProcessor(v *Verifier, svc *entitlement.Service, n Notifier, retry RetryPolicy) *Processor {
	if n == nil {
		n = NopNotifier{}
	}
	return &Processor{
		verifier:     v,
		entitlements: svc,
		notifier:     n,
		retry:        retry,
		notifyAsync:  true,
	}
}

// SetSynchronousNotify disables the background notice goroutine. Test hook.
func (p *Processor) SetSynchronousNotify() { p.notifyAsync = false }

// Handle processes one raw notification.
//
// Error contract for the HTTP layer:
//   - ErrInvalidSignature        -> 400, never retried into side effects
//   - ErrUnroutable              -> 422
//   - core.ErrFulfillmentConflict -> 409, manual review
//   - anything else              -> transient; caller returns 5xx so the
//     processor's own delivery retry kicks in
func (p *Processor) Handle(ctx context.Context, sigHeader string, body []byte) error {
	// 1. Authenticity. Nothing — not even payload logging — happens before
	// this check passes.
	if err := p.verifier.Verify(sigHeader, body); err != nil {
		return err
	}

	// 2. Routing.
	ev, err := ParseEvent(body)
	if err != nil {
		return err
	}

	log := logger.From(ctx).With(
		logger.EventKind(ev.Kind),
		logger.EntitlementID(ev.EntitlementID),
		logger.TenantID(ev.TenantID))

	// 3. Transition.
	switch ev.Kind {
	case KindCheckoutCompleted:
		e, transitioned, err := p.entitlements.MarkCompleted(ctx, ev.TenantID, ev.EntitlementID, ev.PaymentRef)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				// Authentic event pointing at nothing we know. Do not guess.
				return ErrUnroutable
			}
			return err
		}
		if !transitioned {
			log.Info("completion redelivered, already processed")
			return nil
		}
		log.Info("entitlement fulfilled", logger.PaymentRef(ev.PaymentRef))

		// 4. Side effects only after the commit, isolated from the result.
		p.dispatchNotice(e)
		return nil

	case KindCheckoutFailed:
		if _, err := p.entitlements.MarkFailed(ctx, ev.TenantID, ev.EntitlementID, ev.Reason); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return ErrUnroutable
			}
			if errors.Is(err, core.ErrInvalidTransition) {
				// A completion already won; a late failure event is stale
				// processor state, not an error worth retrying.
				log.Warn("stale failure event ignored")
				return nil
			}
			return err
		}
		log.Info("entitlement failed", logger.String("reason", ev.Reason))
		return nil

	default:
		return ErrUnroutable
	}
}

func (p *Processor) dispatchNotice(e *core.Entitlement) {
	// Detached context: the webhook response must not wait on SMTP, and a
	// canceled request must not cancel the notice retries.
	run := func() {
		ctx := context.Background()
		retryNotify(ctx, p.retry, e.ID, func() error {
			return p.notifier.NotifyCompleted(ctx, e)
		})
	}
	if p.notifyAsync {
		go run()
	} else {
		run()
	}
}
