package flight

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/conntrack-airport/catalog"
)

// lookupTable resolves schemaName.tableName, returning gRPC status errors.
func (s *Server) lookupTable(ctx context.Context, schemaName, tableName string) (catalog.Schema, catalog.Table, error) {
	schema, err := s.catalog.Schema(ctx, schemaName)
	if err != nil {
		s.logger.Error("Failed to get schema from catalog",
			"schema", schemaName,
			"error", err,
		)
		return nil, nil, toStatus(err, "failed to get schema")
	}
	if schema == nil {
		return nil, nil, status.Errorf(codes.NotFound, "schema not found: %s", schemaName)
	}

	table, err := schema.Table(ctx, tableName)
	if err != nil {
		s.logger.Error("Failed to get table from schema",
			"schema", schemaName,
			"table", tableName,
			"error", err,
		)
		return nil, nil, toStatus(err, "failed to get table")
	}
	if table == nil {
		return nil, nil, status.Errorf(codes.NotFound, "table not found: %s.%s", schemaName, tableName)
	}
	return schema, table, nil
}
