// Package auth provides bearer-token authentication for the Flight server.
package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidAuthHeader is returned when the authorization header is malformed.
	ErrInvalidAuthHeader = errors.New("authorization header must use Bearer scheme")

	// ErrTokenIsEmpty is returned when the bearer token is missing.
	ErrTokenIsEmpty = errors.New("authorization token is empty")

	// ErrUnauthenticated is returned when authentication fails.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Authenticator validates bearer tokens and returns user identity.
// Implementations MUST be goroutine-safe.
type Authenticator interface {
	// Authenticate validates a bearer token and returns the identity used
	// in logs. Context allows timeout for auth backend calls.
	Authenticate(ctx context.Context, token string) (identity string, err error)
}

// noAuthenticator is an Authenticator that allows all requests.
type noAuthenticator struct{}

// NoAuth returns an Authenticator that allows all requests.
// Useful for development/testing. DO NOT use in production.
func NoAuth() Authenticator {
	return &noAuthenticator{}
}

func (n *noAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	return "anonymous", nil
}

// contextKey is a private type for context keys to avoid collisions.
type contextKey int

const (
	identityKey contextKey = iota
)

// IdentityFromContext retrieves the authenticated user identity from context.
// Returns empty string if no identity is set (unauthenticated request).
func IdentityFromContext(ctx context.Context) string {
	val, ok := ctx.Value(identityKey).(string)
	if !ok {
		return ""
	}
	return val
}

// WithIdentity adds the authenticated user identity to the context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

const bearerPrefix = "Bearer "

// TokenFromAuthorizationHeader extracts the token from "Bearer <token>".
func TokenFromAuthorizationHeader(authHeader string) (string, error) {
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthHeader
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrTokenIsEmpty
	}
	return token, nil
}

// ValidateToken validates a bearer token using the provided Authenticator.
// Returns context with identity set or error.
func ValidateToken(ctx context.Context, token string, authenticator Authenticator) (context.Context, error) {
	if token == "" {
		return ctx, ErrTokenIsEmpty
	}

	identity, err := authenticator.Authenticate(ctx, token)
	if err != nil {
		return ctx, ErrUnauthenticated
	}

	return WithIdentity(ctx, identity), nil
}
