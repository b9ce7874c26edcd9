package catalog

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ScanOptions provides options for table scans.
type ScanOptions struct {
	// Columns the client will read. If nil/empty, all columns.
	// This is a hint; readers still return the full schema.
	Columns []string

	// Filter is the DuckDB filter pushdown JSON sent with the endpoints
	// action. If nil, no filtering.
	Filter []byte

	// Limit is maximum rows to return.
	// If 0 or negative, no limit.
	Limit int64

	// BatchSize is hint for RecordReader batch size.
	// If 0, implementation chooses default.
	BatchSize int
}

// DMLOptions carries per-statement DML flags.
type DMLOptions struct {
	// Returning is true when the statement has a RETURNING clause.
	Returning bool

	// ReturningColumns lists the RETURNING columns, if known.
	ReturningColumns []string
}

// DMLResult holds the outcome of INSERT, UPDATE, or DELETE operations.
type DMLResult struct {
	// AffectedRows is the count of rows inserted, updated, or deleted.
	AffectedRows int64

	// ReturningData contains rows affected by the operation when
	// a RETURNING clause was specified. nil if no RETURNING requested.
	// Caller is responsible for releasing resources (RecordReader.Release).
	ReturningData array.RecordReader
}

// ProjectSchema returns a projected schema containing only the specified columns.
// If columns is nil or empty, returns the full schema unchanged.
// Column order in the returned schema matches the order in columns slice.
// Unknown names are skipped; if none match, the full schema is returned.
func ProjectSchema(schema *arrow.Schema, columns []string) *arrow.Schema {
	if len(columns) == 0 || schema == nil {
		return schema
	}

	fields := make([]arrow.Field, 0, len(columns))
	for _, col := range columns {
		if idx := schema.FieldIndices(col); len(idx) > 0 {
			fields = append(fields, schema.Field(idx[0]))
		}
	}
	if len(fields) == 0 {
		return schema
	}

	meta := schema.Metadata()
	return arrow.NewSchema(fields, &meta)
}
