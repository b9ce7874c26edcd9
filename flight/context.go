package flight

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey int

const (
	airportParamsKey contextKey = iota
)

// Metadata header keys sent by the Airport extension.
const (
	// HeaderAuthorization is the gRPC metadata header for the bearer token.
	HeaderAuthorization = "authorization"
	// HeaderTraceID is the gRPC metadata header for distributed trace identifier.
	HeaderTraceID = "airport-trace-id"
	// HeaderSessionID is the gRPC metadata header for client session identifier.
	HeaderSessionID = "airport-client-session-id"

	headerOperation    = "airport-operation"
	headerFlightPath   = "airport-flight-path"
	headerReturnChunks = "return-chunks"
)

type ContextMeta struct {
	Authorization string
	TraceID       string
	SessionID     string
}

func WithContextMeta(ctx context.Context, meta ContextMeta) context.Context {
	return context.WithValue(ctx, airportParamsKey, &meta)
}

func MetaFromContext(ctx context.Context) *ContextMeta {
	params, ok := ctx.Value(airportParamsKey).(*ContextMeta)
	if !ok {
		return nil
	}
	return params
}

// AuthorizationFromContext retrieves the authorization header from context.
// Returns empty string if not set.
func AuthorizationFromContext(ctx context.Context) string {
	meta := MetaFromContext(ctx)
	if meta == nil {
		return ""
	}
	return meta.Authorization
}

// TraceIDFromContext returns the trace ID from context, or empty string if not set.
func TraceIDFromContext(ctx context.Context) string {
	meta := MetaFromContext(ctx)
	if meta == nil {
		return ""
	}
	return meta.TraceID
}

// SessionIDFromContext returns the session ID from context, or empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	meta := MetaFromContext(ctx)
	if meta == nil {
		return ""
	}
	return meta.SessionID
}

// EnrichContextMetadata copies the Airport headers from the incoming gRPC
// metadata into ctx. An already enriched context is returned unchanged.
func EnrichContextMetadata(ctx context.Context) context.Context {
	if MetaFromContext(ctx) != nil {
		return ctx
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}

	return WithContextMeta(ctx, ContextMeta{
		Authorization: firstValue(md, HeaderAuthorization),
		TraceID:       firstValue(md, HeaderTraceID),
		SessionID:     firstValue(md, HeaderSessionID),
	})
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// requestAttrs returns the trace and session ids for log records.
func requestAttrs(ctx context.Context) []any {
	meta := MetaFromContext(ctx)
	if meta == nil {
		return nil
	}
	var attrs []any
	if meta.TraceID != "" {
		attrs = append(attrs, "trace_id", meta.TraceID)
	}
	if meta.SessionID != "" {
		attrs = append(attrs, "session_id", meta.SessionID)
	}
	return attrs
}
