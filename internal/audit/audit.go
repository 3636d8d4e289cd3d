// Package audit emits structured audit events for every entitlement
// lifecycle change. Events go to the main log stream today; the sink can be
// swapped for a DB table without touching callers.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/paygate/internal/observability/logger"
)

// Log writes one audit event with the request-scoped logger.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+1)
	all = append(all, zap.String("audit_event", event))
	all = append(all, fields...)
	logger.From(ctx).Info("audit", all...)
}
