// Package requestcontext provides transport-independent context accessors for
// request-scoped values.
//
// Values are set by whichever presentation layer drives the services (CLI,
// batch importer, HTTP middleware) and read by services. Keeping this package
// free of net/http lets workers and commands populate the same values.
//
// Usage in services (read values):
//
//	caller, ok := requestcontext.CallerFrom(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithCaller(ctx, requestcontext.TenantCaller(userID, tenantID))
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "benefits/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller is the authenticated actor behind a request.
//
// A province-wide caller sees every tenant; a tenant-scoped caller sees only
// TenantID. The zero value is an anonymous caller with no visibility.
type Caller struct {
	UserID       id.UserID
	ProvinceWide bool
	TenantID     id.TenantID
}

// TenantCaller builds a caller scoped to one office.
func TenantCaller(userID id.UserID, tenantID id.TenantID) Caller {
	return Caller{UserID: userID, TenantID: tenantID}
}

// ProvinceCaller builds a caller with province-wide visibility.
func ProvinceCaller(userID id.UserID) Caller {
	return Caller{UserID: userID, ProvinceWide: true}
}

// -----------------------------------------------------------------------------
// Caller
// -----------------------------------------------------------------------------

// WithCaller injects the authenticated caller into the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, c)
}

// CallerFrom retrieves the authenticated caller from the context.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ContextKeyCaller).(Caller)
	return c, ok
}

// UserID retrieves the caller's user ID, or the nil UUID when unauthenticated.
func UserID(ctx context.Context) id.UserID {
	if c, ok := CallerFrom(ctx); ok {
		return c.UserID
	}
	return id.UserID{}
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that pin "now" for lookback windows
//   - Workers that need consistent time within one task
//   - CLI commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
