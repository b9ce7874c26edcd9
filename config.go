package airport

import (
	"errors"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/conntrack-airport/auth"
	"github.com/hugr-lab/conntrack-airport/catalog"
)

// ServerConfig contains configuration for the Airport Flight server.
type ServerConfig struct {
	// Catalog provides the schemas and tables.
	// REQUIRED: MUST NOT be nil.
	Catalog catalog.Catalog

	// Auth provides authentication logic.
	// OPTIONAL: If nil, no authentication (all requests allowed).
	Auth auth.Authenticator

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// LogLevel sets the logging level of a logger created by the server.
	// If Logger is also provided, LogLevel is ignored.
	LogLevel *slog.Level

	// MaxMessageSize sets maximum gRPC message size in bytes.
	// OPTIONAL: If 0, uses gRPC default (4MB).
	MaxMessageSize int

	// Address is the server's public address (e.g., "localhost:50051").
	// OPTIONAL: If empty, FlightEndpoint locations will not include URI.
	Address string
}

// Standard errors returned by the airport package.
var (
	// ErrUnauthorized indicates authentication failed.
	// Return this from Authenticator.Authenticate() for invalid tokens.
	ErrUnauthorized = auth.ErrUnauthenticated

	// ErrInvalidConfig indicates ServerConfig validation failed.
	ErrInvalidConfig = errors.New("invalid server config")
)
