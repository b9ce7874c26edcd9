package flight

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GetFlightInfo returns schema metadata and ticket for table queries.
//
// The descriptor.Path should contain [schema_name, table_name].
// The returned ticket carries no filter; clients that push filters down
// use the endpoints action instead.
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	ctx = EnrichContextMetadata(ctx)

	if desc.GetType() != flight.DescriptorPATH {
		return nil, status.Error(codes.InvalidArgument, "descriptor must be PATH type")
	}

	path := desc.GetPath()
	if len(path) != 2 {
		return nil, status.Error(codes.InvalidArgument, "path must contain exactly 2 elements: [schema_name, table_name]")
	}
	schemaName, tableName := path[0], path[1]

	s.logger.Debug("GetFlightInfo request",
		"schema", schemaName,
		"table", tableName,
	)

	schema, table, err := s.lookupTable(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	info, err := s.tableFlightInfo(schema.Name(), table, desc, &TicketData{Schema: schemaName, Table: tableName})
	if err != nil {
		s.logger.Error("Failed to build FlightInfo",
			"schema", schemaName,
			"table", tableName,
			"error", err,
		)
		return nil, status.Errorf(codes.Internal, "failed to build flight info: %v", err)
	}
	return info, nil
}
