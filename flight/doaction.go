package flight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/hugr-lab/conntrack-airport/catalog"
	"github.com/hugr-lab/conntrack-airport/internal/msgpack"
	"github.com/hugr-lab/conntrack-airport/internal/serialize"
)

// DoAction executes the Airport catalog actions.
func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	ctx := EnrichContextMetadata(stream.Context())

	s.logger.Debug("DoAction called",
		"type", action.GetType(),
		"body_size", len(action.GetBody()),
	)

	switch action.GetType() {
	// Required Airport actions
	case "list_schemas":
		return s.handleListSchemas(ctx, action, stream)
	case "endpoints":
		return s.handleEndpoints(ctx, action, stream)

	// Optional Airport actions
	case "flight_info":
		return s.handleFlightInfo(ctx, action, stream)
	case "list_tables":
		return s.handleListTables(ctx, action, stream)
	case "create_transaction":
		return s.handleCreateTransaction(ctx, action, stream)

	default:
		return status.Errorf(codes.Unimplemented, "unknown action type: %s", action.GetType())
	}
}

// tableAppMetadata matches AirportSerializedFlightAppMetadata.
type tableAppMetadata struct {
	Type        string  `msgpack:"type"`
	Schema      string  `msgpack:"schema"`
	Catalog     string  `msgpack:"catalog"`
	Name        string  `msgpack:"name"`
	Comment     string  `msgpack:"comment"`
	InputSchema *string `msgpack:"input_schema"`
	ActionName  *string `msgpack:"action_name"`
	Description *string `msgpack:"description"`
	ExtraData   *string `msgpack:"extra_data"`
}

// tableFlightInfo builds the FlightInfo DuckDB uses to describe and fetch a
// table. td is encoded as the endpoint ticket.
func (s *Server) tableFlightInfo(schemaName string, table catalog.Table, desc *flight.FlightDescriptor, td *TicketData) (*flight.FlightInfo, error) {
	arrowSchema := table.ArrowSchema(nil)
	if arrowSchema == nil {
		return nil, fmt.Errorf("table %s.%s has nil Arrow schema", schemaName, table.Name())
	}

	appMetadata, err := msgpack.Encode(tableAppMetadata{
		Type:    "table",
		Schema:  schemaName,
		Name:    table.Name(),
		Comment: table.Comment(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode app metadata: %w", err)
	}

	ticket, err := td.Encode()
	if err != nil {
		return nil, err
	}

	if desc == nil {
		desc = &flight.FlightDescriptor{
			Type: flight.DescriptorPATH,
			Path: []string{schemaName, table.Name()},
		}
	}

	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(arrowSchema, s.allocator),
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{s.endpoint(ticket)},
		TotalRecords:     -1, // unknown until scan
		TotalBytes:       -1,
		AppMetadata:      appMetadata,
	}, nil
}

// endpoint wraps ticket in a FlightEndpoint pointing at the advertised
// address. Without an address DuckDB reuses the current connection.
func (s *Server) endpoint(ticket []byte) *flight.FlightEndpoint {
	ep := &flight.FlightEndpoint{
		Ticket: &flight.Ticket{Ticket: ticket},
	}
	if s.address != "" {
		ep.Location = []*flight.Location{{Uri: "grpc://" + s.address}}
	}
	return ep
}

// compressedContent matches AirportSerializedCompressedContent, which is
// encoded as a [length, data] array.
type compressedContent struct {
	_msgpack struct{} `msgpack:",as_array"`

	Length uint32
	Data   string
}

func compressContent(uncompressed []byte) ([]byte, error) {
	compressed, err := serialize.Compress(uncompressed)
	if err != nil {
		return nil, err
	}
	return msgpack.Encode(compressedContent{
		Length: uint32(len(uncompressed)),
		Data:   string(compressed),
	})
}

// handleListSchemas returns every schema with its serialized contents.
// The response is a compressed AirportSerializedCatalogRoot:
// https://airport.query.farm/server_action_list_schemas.html
func (s *Server) handleListSchemas(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var params struct {
		CatalogName string `msgpack:"catalog_name"`
	}
	if len(action.GetBody()) > 0 {
		if err := msgpack.Decode(action.GetBody(), &params); err != nil {
			// Older clients send no parameters.
			s.logger.Debug("Ignoring undecodable list_schemas parameters", "error", err)
		}
	}

	schemas, err := s.catalog.Schemas(ctx)
	if err != nil {
		s.logger.Error("Failed to get schemas", "error", err)
		return toStatus(err, "failed to get schemas")
	}

	schemaObjects := make([]map[string]any, 0, len(schemas))
	for i, schema := range schemas {
		contents, hash, err := s.serializeSchemaContents(ctx, schema)
		if err != nil {
			s.logger.Error("Failed to serialize schema contents",
				"schema", schema.Name(),
				"error", err,
			)
			return status.Errorf(codes.Internal, "failed to serialize schema contents: %v", err)
		}

		schemaObjects = append(schemaObjects, map[string]any{
			"name":        schema.Name(),
			"description": schema.Comment(),
			"tags":        map[string]string{},
			"contents": map[string]any{
				"sha256":     hash,
				"url":        nil,
				"serialized": contents,
			},
			"is_default": i == 0,
		})
	}

	catalogRoot := map[string]any{
		"contents": map[string]any{
			"sha256":     "0000000000000000000000000000000000000000000000000000000000000000",
			"url":        nil,
			"serialized": nil,
		},
		"schemas": schemaObjects,
		"version_info": map[string]any{
			"catalog_version": uint64(1),
			"is_fixed":        true,
		},
	}

	uncompressed, err := msgpack.Encode(catalogRoot)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	body, err := compressContent(uncompressed)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to compress response: %v", err)
	}

	if err := stream.Send(&flight.Result{Body: body}); err != nil {
		s.logger.Error("Failed to send schemas", "error", err)
		return status.Errorf(codes.Internal, "failed to send result: %v", err)
	}

	s.logger.Debug("list_schemas completed",
		"catalog_name", params.CatalogName,
		"schema_count", len(schemas),
		"uncompressed_bytes", len(uncompressed),
	)
	return nil
}

// serializeSchemaContents returns the compressed msgpack array of
// protobuf-encoded FlightInfo for every table in schema, and its SHA256.
func (s *Server) serializeSchemaContents(ctx context.Context, schema catalog.Schema) (string, string, error) {
	tables, err := schema.Tables(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to get tables: %w", err)
	}

	infos := make([][]byte, 0, len(tables))
	for _, table := range tables {
		info, err := s.tableFlightInfo(schema.Name(), table, nil, &TicketData{
			Schema: schema.Name(),
			Table:  table.Name(),
		})
		if err != nil {
			return "", "", err
		}
		data, err := proto.Marshal(info)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal FlightInfo: %w", err)
		}
		infos = append(infos, data)
	}

	uncompressed, err := msgpack.Encode(infos)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode FlightInfo array: %w", err)
	}
	serialized, err := compressContent(uncompressed)
	if err != nil {
		return "", "", fmt.Errorf("failed to compress schema contents: %w", err)
	}

	hash := sha256.Sum256(serialized)
	return string(serialized), hex.EncodeToString(hash[:]), nil
}

// handleListTables returns the table names of one schema, or of every
// schema when no name is given.
func (s *Server) handleListTables(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var params struct {
		SchemaName string `msgpack:"schema_name"`
	}
	if len(action.GetBody()) > 0 {
		if err := msgpack.Decode(action.GetBody(), &params); err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid parameters: %v", err)
		}
	}

	var schemas []catalog.Schema
	if params.SchemaName == "" {
		all, err := s.catalog.Schemas(ctx)
		if err != nil {
			return toStatus(err, "failed to get schemas")
		}
		schemas = all
	} else {
		schema, err := s.catalog.Schema(ctx, params.SchemaName)
		if err != nil {
			return toStatus(err, "failed to get schema")
		}
		if schema == nil {
			return status.Errorf(codes.NotFound, "schema not found: %s", params.SchemaName)
		}
		schemas = []catalog.Schema{schema}
	}

	tablesMap := make(map[string][]string, len(schemas))
	for _, schema := range schemas {
		tables, err := schema.Tables(ctx)
		if err != nil {
			return toStatus(err, "failed to get tables")
		}
		names := make([]string, 0, len(tables))
		for _, table := range tables {
			names = append(names, table.Name())
		}
		tablesMap[schema.Name()] = names
	}

	body, err := msgpack.Encode(map[string]any{"tables": tablesMap})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	if err := stream.Send(&flight.Result{Body: body}); err != nil {
		return status.Errorf(codes.Internal, "failed to send result: %v", err)
	}
	return nil
}

// endpointsRequest is AirportGetFlightEndpointsRequest.
type endpointsRequest struct {
	Descriptor string `msgpack:"descriptor"`
	Parameters struct {
		JSONFilters string   `msgpack:"json_filters"`
		ColumnIDs   []uint64 `msgpack:"column_ids"`
	} `msgpack:"parameters"`
}

// handleEndpoints returns the endpoints for a table scan. The DuckDB filter
// JSON and the projected columns are carried into the ticket.
func (s *Server) handleEndpoints(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var request endpointsRequest
	if err := msgpack.Decode(action.GetBody(), &request); err != nil {
		s.logger.Error("Failed to decode endpoints request", "error", err)
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	desc := &flight.FlightDescriptor{}
	if err := proto.Unmarshal([]byte(request.Descriptor), desc); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid descriptor: %v", err)
	}
	if desc.GetType() != flight.DescriptorPATH || len(desc.GetPath()) != 2 {
		return status.Errorf(codes.InvalidArgument, "descriptor must be PATH type with 2 elements [schema, table]")
	}
	schemaName, tableName := desc.GetPath()[0], desc.GetPath()[1]

	_, table, err := s.lookupTable(ctx, schemaName, tableName)
	if err != nil {
		return err
	}

	td := TicketData{
		Schema:  schemaName,
		Table:   tableName,
		Columns: columnNames(table, request.Parameters.ColumnIDs),
		Filter:  request.Parameters.JSONFilters,
	}

	s.logger.Debug("endpoints requested",
		"schema", schemaName,
		"table", tableName,
		"has_filters", td.Filter != "",
		"columns", td.Columns,
	)

	ticket, err := td.Encode()
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode ticket: %v", err)
	}
	endpointBytes, err := proto.Marshal(s.endpoint(ticket))
	if err != nil {
		return status.Errorf(codes.Internal, "failed to marshal endpoint: %v", err)
	}

	// A vector of strings, each a serialized FlightEndpoint.
	body, err := msgpack.Encode([]string{string(endpointBytes)})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	if err := stream.Send(&flight.Result{Body: body}); err != nil {
		s.logger.Error("Failed to send endpoints", "error", err)
		return status.Errorf(codes.Internal, "failed to send result: %v", err)
	}
	return nil
}

// columnNames maps DuckDB column ids to field names. Ids outside the schema,
// such as the rowid pseudo column, are skipped.
func columnNames(table catalog.Table, ids []uint64) []string {
	if len(ids) == 0 {
		return nil
	}
	schema := table.ArrowSchema(nil)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < uint64(schema.NumFields()) {
			names = append(names, schema.Field(int(id)).Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

// handleFlightInfo returns the serialized FlightInfo for a descriptor.
func (s *Server) handleFlightInfo(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var request struct {
		Descriptor string `msgpack:"descriptor"`
		AtUnit     string `msgpack:"at_unit"`
		AtValue    string `msgpack:"at_value"`
	}
	if err := msgpack.Decode(action.GetBody(), &request); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if request.AtUnit != "" || request.AtValue != "" {
		return status.Errorf(codes.InvalidArgument, "time travel queries are not supported")
	}

	desc := &flight.FlightDescriptor{}
	if err := proto.Unmarshal([]byte(request.Descriptor), desc); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid descriptor: %v", err)
	}
	path := desc.GetPath()
	if len(path) != 2 {
		return status.Errorf(codes.InvalidArgument, "invalid descriptor path, expected [schema, table], got %v", path)
	}

	schema, table, err := s.lookupTable(ctx, path[0], path[1])
	if err != nil {
		return err
	}

	info, err := s.tableFlightInfo(schema.Name(), table, desc, &TicketData{Schema: path[0], Table: path[1]})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to build flight info: %v", err)
	}
	infoBytes, err := proto.Marshal(info)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to marshal FlightInfo: %v", err)
	}
	return stream.Send(&flight.Result{Body: infoBytes})
}

// handleCreateTransaction returns a nil transaction identifier; the catalog
// is read-only and has no transactions.
func (s *Server) handleCreateTransaction(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	// The field must be present with a nil value.
	body, err := msgpack.Encode(map[string]any{"identifier": nil})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	if err := stream.Send(&flight.Result{Body: body}); err != nil {
		return status.Errorf(codes.Internal, "failed to send result: %v", err)
	}
	return nil
}
