package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// STANDARD FIELDS - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func DurationMs(v int64) zap.Field       { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field              { return zap.Int("bytes", v) }

// =================================================================================
// STANDARD FIELDS - DOMAIN
// =================================================================================

func TenantID(v string) zap.Field      { return zap.String("tenant_id", v) }
func SubjectID(v string) zap.Field     { return zap.String("subject_id", v) }
func AssetID(v string) zap.Field       { return zap.String("asset_id", v) }
func EntitlementID(v string) zap.Field { return zap.String("entitlement_id", v) }
func State(v string) zap.Field         { return zap.String("state", v) }

// PaymentRef tags the processor-assigned payment reference. Opaque, never
// parsed; logged only for reconciliation.
func PaymentRef(v string) zap.Field { return zap.String("payment_ref", v) }
func RefundRef(v string) zap.Field  { return zap.String("refund_ref", v) }
func EventKind(v string) zap.Field  { return zap.String("event_kind", v) }

// =================================================================================
// STANDARD FIELDS - SYSTEM
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func Attempt(v int) zap.Field      { return zap.Int("attempt", v) }

func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
