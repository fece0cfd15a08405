package middleware

import (
	"context"
	"net/http"
	"reservo/pkg/model"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	CallerKey    contextKey = "caller"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
)

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// CallerFromContext returns the identity attached by Identity. ok is false when
// the request never passed through it.
func CallerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(model.Caller)
	return caller, ok
}

func WithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

func requestID(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}
