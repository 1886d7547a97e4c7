// Package requestcontext provides HTTP-independent context accessors
// for request-scoped values. Middleware sets them, services read them,
// and tests inject fixed values (notably a fixed request time) without
// touching net/http.
package requestcontext

import (
	"context"
	"time"

	id "nimbus/pkg/domain"
)

type (
	ownerIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithOwnerID stores the authenticated owner on the context.
func WithOwnerID(ctx context.Context, ownerID id.OwnerID) context.Context {
	return context.WithValue(ctx, ownerIDKey{}, ownerID)
}

// OwnerID returns the authenticated owner, or the zero ID when unset.
func OwnerID(ctx context.Context) id.OwnerID {
	ownerID, _ := ctx.Value(ownerIDKey{}).(id.OwnerID)
	return ownerID
}

// WithRequestID stores the correlation ID on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or "" when unset.
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithTime pins the request time, letting tests evaluate time-dependent
// logic deterministically.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
