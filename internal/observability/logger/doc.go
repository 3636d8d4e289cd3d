// Package logger provides a singleton Zap logger with context-based scoping.
//
// The singleton is initialized once with Init(). Request middlewares attach a
// scoped logger (request_id, tenant_id, subject_id) to the context via
// ToContext; services retrieve it with From(ctx) and never hold a logger of
// their own across requests.
//
// "dev" renders colored console output, "prod" renders JSON.
package logger
