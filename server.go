package airport

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"

	"github.com/hugr-lab/conntrack-airport/flight"
)

// NewServer registers the Flight service handlers on grpcServer.
//
// It does not start the gRPC server; the caller controls the lifecycle via
// grpcServer.Serve(). Use ServerOptions to build the gRPC server so that the
// Airport header and authentication interceptors are installed:
//
//	config := airport.ServerConfig{
//	    Catalog: connections.NewCatalog(table),
//	    Auth:    airport.StaticTokens(tokens),
//	}
//	grpcServer := grpc.NewServer(airport.ServerOptions(config)...)
//	if err := airport.NewServer(grpcServer, config); err != nil {
//	    log.Fatal(err)
//	}
func NewServer(grpcServer *grpc.Server, config ServerConfig) error {
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	allocator := config.Allocator
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}

	logger := serverLogger(config)

	flightServer := flight.NewServer(config.Catalog, allocator, logger, config.Address)
	flight.RegisterFlightServer(grpcServer, flightServer)

	logger.Info("Airport Flight server registered",
		"has_auth", config.Auth != nil,
		"address", config.Address,
		"max_message_size", config.MaxMessageSize,
	)
	return nil
}

// serverLogger resolves the logger for config. An explicit Logger wins over
// LogLevel.
func serverLogger(config ServerConfig) *slog.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	if config.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *config.LogLevel}))
	}
	return slog.Default()
}

func validateConfig(config ServerConfig) error {
	if config.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if config.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must not be negative, got %d", config.MaxMessageSize)
	}
	return nil
}

// ServerOptions returns the gRPC server options for config: the interceptors
// that read Airport headers and authenticate bearer tokens, and the message
// size limits.
func ServerOptions(config ServerConfig) []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(flight.UnaryServerInterceptor(config.Auth)),
		grpc.StreamInterceptor(flight.StreamServerInterceptor(config.Auth)),
	}

	if config.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(config.MaxMessageSize),
			grpc.MaxSendMsgSize(config.MaxMessageSize),
		)
	}
	return opts
}
