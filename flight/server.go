// Package flight provides the Arrow Flight handlers that expose a catalog to
// the DuckDB Airport extension.
package flight

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"

	"github.com/hugr-lab/conntrack-airport/catalog"
)

// Server implements the Flight service handlers.
// Embeds BaseFlightServer so RPCs it does not implement return Unimplemented.
type Server struct {
	flight.BaseFlightServer

	catalog   catalog.Catalog
	allocator memory.Allocator
	logger    *slog.Logger
	address   string // public address advertised in FlightEndpoint locations
}

// NewServer creates a Flight server over cat. A nil allocator or logger is
// replaced with the default.
func NewServer(cat catalog.Catalog, allocator memory.Allocator, logger *slog.Logger, address string) *Server {
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		catalog:   cat,
		allocator: allocator,
		logger:    logger,
		address:   address,
	}
}

// RegisterFlightServer registers the Flight service on grpcServer.
func RegisterFlightServer(grpcServer *grpc.Server, flightServer *Server) {
	flight.RegisterFlightServiceServer(grpcServer, flightServer)
}
