// Package requestcontext carries request-scoped values (actor, client, request
// id, request time) through context without depending on net/http.
// Middleware writes them; services and stores read them.
package requestcontext

import (
	"context"
	"time"

	id "habitat/pkg/domain"
)

type key int

const (
	actorKey key = iota
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// ActorID is the authenticated profile, or the zero ID on public routes.
func ActorID(ctx context.Context) id.ProfileID {
	actor, _ := value[id.ProfileID](ctx, actorKey)
	return actor
}

func WithActorID(ctx context.Context, actor id.ProfileID) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ClientIP(ctx context.Context) string {
	ip, _ := value[string](ctx, clientIPKey)
	return ip
}

func UserAgent(ctx context.Context) string {
	ua, _ := value[string](ctx, userAgentKey)
	return ua
}

// WithClientMetadata records where a request came from. Signatures keep both
// values as evidence.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	return context.WithValue(context.WithValue(ctx, clientIPKey, clientIP), userAgentKey, userAgent)
}

func RequestID(ctx context.Context) string {
	reqID, _ := value[string](ctx, requestIDKey)
	return reqID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Time reports the instant pinned by WithTime, if any.
func Time(ctx context.Context) (time.Time, bool) {
	return value[time.Time](ctx, requestTimeKey)
}

// Now is the pinned request time, or the wall clock outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := Time(ctx); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
