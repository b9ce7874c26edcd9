package flight

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/conntrack-airport/catalog"
	"github.com/hugr-lab/conntrack-airport/internal/msgpack"
	"github.com/hugr-lab/conntrack-airport/internal/recovery"
)

// AirportChangedFinalMetadata is the msgpack trailer of a DML exchange.
type AirportChangedFinalMetadata struct {
	TotalChanged uint64 `msgpack:"total_changed"`
}

// dmlFunc runs one DML statement against a table.
type dmlFunc func(ctx context.Context, rows array.RecordReader, opts *catalog.DMLOptions) (*catalog.DMLResult, error)

// DoExchange handles the INSERT, UPDATE and DELETE exchanges of the Airport
// extension.
//
// Headers:
//   - airport-operation: "insert", "update" or "delete"
//   - airport-flight-path: "schema/table"
//   - return-chunks: "1" if a RETURNING clause is present
//
// Function operations are not served.
func (s *Server) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx := EnrichContextMetadata(stream.Context())

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Errorf(codes.InvalidArgument, "missing metadata")
	}

	opType := firstValue(md, headerOperation)
	if opType == "" {
		return status.Errorf(codes.InvalidArgument, "missing %s header", headerOperation)
	}
	returnData := firstValue(md, headerReturnChunks) == "1"

	switch opType {
	case "insert", "update", "delete":
	case "scalar_function", "table_function", "table_function_in_out":
		return status.Errorf(codes.Unimplemented, "%s is not supported", opType)
	default:
		return status.Errorf(codes.InvalidArgument, "invalid %s: %s (expected insert, update, or delete)", headerOperation, opType)
	}

	flightPath := firstValue(md, headerFlightPath)
	schemaName, tableName, ok := strings.Cut(flightPath, "/")
	if !ok || schemaName == "" || tableName == "" || strings.Contains(tableName, "/") {
		return status.Errorf(codes.InvalidArgument, "invalid flight path format: %q", flightPath)
	}

	s.logger.Debug("DoExchange requested",
		"operation", opType,
		"return_chunks", returnData,
		"schema", schemaName,
		"table", tableName,
	)

	_, table, err := s.lookupTable(ctx, schemaName, tableName)
	if err != nil {
		return err
	}

	var run dmlFunc
	switch opType {
	case "insert":
		if t, ok := table.(catalog.InsertableTable); ok {
			run = t.Insert
		}
	case "update":
		if t, ok := table.(catalog.UpdatableTable); ok {
			run = t.Update
		}
	case "delete":
		if t, ok := table.(catalog.DeletableTable); ok {
			run = t.Delete
		}
	}
	if run == nil {
		return status.Errorf(codes.FailedPrecondition, "table '%s' does not support %s operations", tableName, strings.ToUpper(opType))
	}

	return s.handleDML(ctx, stream, opType, tableName, run, returnData)
}

func (s *Server) handleDML(ctx context.Context, stream flight.FlightService_DoExchangeServer, opType, tableName string, run dmlFunc, returnData bool) error {
	input, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.allocator))
	if errors.Is(err, io.EOF) {
		return s.sendDMLFinalMetadata(stream, 0)
	}
	if err != nil {
		return status.Errorf(codes.Internal, "failed to create input record reader: %v", err)
	}
	defer input.Release()

	result, err := recovery.RecoverToValue(s.logger, opType, func() (*catalog.DMLResult, error) {
		return run(ctx, input, &catalog.DMLOptions{Returning: returnData})
	})
	if err != nil {
		s.logger.Info("DML rejected",
			"operation", opType,
			"table", tableName,
			"error", err,
		)
		return toStatus(err, opType+" failed")
	}
	if result == nil {
		result = &catalog.DMLResult{}
	}

	if returnData && result.ReturningData != nil {
		defer result.ReturningData.Release()
		writer := flight.NewRecordWriter(stream, ipc.WithSchema(result.ReturningData.Schema()), ipc.WithAllocator(s.allocator))
		for result.ReturningData.Next() {
			if err := writer.Write(result.ReturningData.RecordBatch()); err != nil {
				writer.Close()
				return status.Errorf(codes.Internal, "failed to write returning data: %v", err)
			}
		}
		if err := writer.Close(); err != nil {
			return status.Errorf(codes.Internal, "failed to close returning stream: %v", err)
		}
	}

	return s.sendDMLFinalMetadata(stream, uint64(max(result.AffectedRows, 0)))
}

// sendDMLFinalMetadata sends AirportChangedFinalMetadata as app metadata.
func (s *Server) sendDMLFinalMetadata(stream flight.FlightService_DoExchangeServer, totalChanged uint64) error {
	data, err := msgpack.Encode(AirportChangedFinalMetadata{TotalChanged: totalChanged})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode final metadata: %v", err)
	}
	return stream.Send(&flight.FlightData{AppMetadata: data})
}
