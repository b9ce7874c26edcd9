package flight

import (
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/conntrack-airport/internal/serialize"
)

// ListFlights returns the catalog's tables as a single FlightInfo whose
// ticket is a ZStandard-compressed Arrow IPC stream in the Flight SQL
// GetTables layout. Criteria are ignored.
func (s *Server) ListFlights(criteria *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	ctx := EnrichContextMetadata(stream.Context())

	catalogData, err := serialize.SerializeCatalog(ctx, s.catalog, s.allocator)
	if err != nil {
		s.logger.Error("Failed to serialize catalog", "error", err)
		return toStatus(err, "failed to serialize catalog")
	}

	compressed, err := serialize.Compress(catalogData)
	if err != nil {
		s.logger.Error("Failed to compress catalog", "error", err)
		return status.Errorf(codes.Internal, "failed to compress catalog: %v", err)
	}

	s.logger.Debug("Catalog serialized",
		"uncompressed_bytes", len(catalogData),
		"compressed_bytes", len(compressed),
	)

	flightInfo := &flight.FlightInfo{
		FlightDescriptor: &flight.FlightDescriptor{
			Type: flight.DescriptorCMD,
			Cmd:  []byte("ListFlights"),
		},
		Endpoint: []*flight.FlightEndpoint{
			{Ticket: &flight.Ticket{Ticket: compressed}},
		},
		TotalRecords: -1,
		TotalBytes:   int64(len(compressed)),
	}

	if err := stream.Send(flightInfo); err != nil {
		s.logger.Error("Failed to send FlightInfo", "error", err)
		return status.Errorf(codes.Internal, "failed to send flight info: %v", err)
	}
	return nil
}
