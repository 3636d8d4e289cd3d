package fulfillment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dropDatabas3/paygate/internal/email"
	"github.com/dropDatabas3/paygate/internal/observability/logger"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// Notifier delivers the post-completion confirmation notice. It runs only
// after the state transition is durably committed, and its failure never
// rolls back or re-attempts that transition.
type Notifier interface {
	NotifyCompleted(ctx context.Context, e *core.Entitlement) error
}

// NopNotifier is wired when no SMTP block is configured.
type NopNotifier struct{}

func (NopNotifier) NotifyCompleted(context.Context, *core.Entitlement) error { return nil }

// EmailNotifier sends the confirmation over SMTP. In this deployment subject
// ids are the customers' email addresses.
type EmailNotifier struct {
	Sender email.Sender
}

func (n *EmailNotifier) NotifyCompleted(ctx context.Context, e *core.Entitlement) error {
	subject := "Your purchase is ready"
	text := fmt.Sprintf("Your purchase (order %s) is complete. The content is now available in your library.", e.ID)
	return n.Sender.Send(e.SubjectID, subject, "", text)
}

// RetryPolicy bounds the independent redelivery of the confirmation notice.
// Explicit and owned here, not hidden inside a client library.
type RetryPolicy struct {
	Attempts int
	BaseWait time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseWait <= 0 {
		p.BaseWait = 2 * time.Second
	}
	return p
}

// retryNotify runs fn up to Attempts times with jittered exponential backoff.
// The last error is logged, never propagated to the webhook result.
func retryNotify(ctx context.Context, policy RetryPolicy, entitlementID string, fn func() error) {
	policy = policy.withDefaults()

	var err error
	wait := policy.BaseWait
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err = fn(); err == nil {
			return
		}
		logger.From(ctx).Warn("confirmation notice attempt failed",
			logger.EntitlementID(entitlementID),
			logger.Attempt(attempt),
			logger.Err(err))
		if attempt == policy.Attempts {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(wait) / 2))
		select {
		case <-time.After(wait + jitter):
		case <-ctx.Done():
			return
		}
		wait *= 2
	}
	logger.From(ctx).Error("confirmation notice gave up",
		logger.EntitlementID(entitlementID),
		logger.Int("attempts", policy.Attempts),
		logger.Err(err))
}
