package flight

import (
	"context"
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/conntrack-airport/internal/recovery"
)

// DoGet streams Arrow record batches for a table query.
//
// The ticket must be produced by EncodeTicket or the endpoints action.
// The handler:
//  1. Decodes the ticket to get schema/table names and the pushdown filter
//  2. Looks up the table in the catalog
//  3. Calls the table's Scan function to get RecordReader
//  4. Validates the RecordReader schema matches table schema
//  5. Streams record batches using Arrow IPC format
func (s *Server) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := EnrichContextMetadata(stream.Context())

	ticketData, err := DecodeTicket(ticket.GetTicket())
	if err != nil {
		s.logger.Error("Failed to decode ticket", "error", err)
		return status.Errorf(codes.InvalidArgument, "invalid ticket: %v", err)
	}

	logger := s.logger.With(requestAttrs(ctx)...).With(
		"schema", ticketData.Schema,
		"table", ticketData.Table,
	)
	logger.Debug("DoGet request",
		"has_filter", ticketData.Filter != "",
		"columns", ticketData.Columns,
	)

	reader, readerSchema, err := s.executeTableScan(ctx, ticketData)
	if err != nil {
		return err
	}
	defer reader.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(readerSchema), ipc.WithAllocator(s.allocator))
	defer writer.Close()

	batchCount := 0
	totalRows := int64(0)

	for reader.Next() {
		select {
		case <-ctx.Done():
			logger.Debug("DoGet cancelled by client",
				"batches_sent", batchCount,
				"rows_sent", totalRows,
			)
			return status.Error(codes.Canceled, "request cancelled")
		default:
		}

		record := reader.RecordBatch()
		batchCount++
		totalRows += record.NumRows()

		if err := writer.Write(record); err != nil {
			logger.Error("Failed to write record batch",
				"batch", batchCount,
				"error", err,
			)
			return status.Errorf(codes.Internal, "failed to write batch %d: %v", batchCount, err)
		}
	}

	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		logger.Error("RecordReader error during iteration",
			"batch", batchCount,
			"error", err,
		)
		return toStatus(err, "scan error")
	}

	logger.Debug("DoGet completed successfully",
		"batches_sent", batchCount,
		"total_rows", totalRows,
	)
	return nil
}

// executeTableScan resolves the ticket's table and starts the scan.
func (s *Server) executeTableScan(ctx context.Context, ticketData *TicketData) (array.RecordReader, *arrow.Schema, error) {
	_, table, err := s.lookupTable(ctx, ticketData.Schema, ticketData.Table)
	if err != nil {
		return nil, nil, err
	}

	// DuckDB expects the full schema in DoGet; projection is a hint only.
	fullSchema := table.ArrowSchema(nil)
	if fullSchema == nil {
		return nil, nil, status.Errorf(codes.Internal, "table %s.%s has nil Arrow schema", ticketData.Schema, ticketData.Table)
	}

	scanOpts := ticketData.ToScanOptions()
	reader, err := recovery.RecoverToValue(s.logger, "Scan", func() (array.RecordReader, error) {
		return table.Scan(ctx, scanOpts)
	})
	if err != nil {
		s.logger.Error("Table scan failed",
			"schema", ticketData.Schema,
			"table", ticketData.Table,
			"error", err,
		)
		return nil, nil, toStatus(err, "table scan failed")
	}

	readerSchema := reader.Schema()
	if !fullSchema.Equal(readerSchema) {
		reader.Release()
		s.logger.Error("RecordReader schema does not match table schema",
			"schema", ticketData.Schema,
			"table", ticketData.Table,
			"table_schema_fields", fullSchema.NumFields(),
			"reader_schema_fields", readerSchema.NumFields(),
		)
		return nil, nil, status.Errorf(codes.Internal,
			"schema mismatch: table has %d fields, reader has %d fields",
			fullSchema.NumFields(), readerSchema.NumFields())
	}

	return reader, fullSchema, nil
}
