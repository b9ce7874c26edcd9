// Package serialize encodes catalog metadata for ListFlights and compresses
// Airport action payloads.
package serialize

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/conntrack-airport/catalog"
)

// TablesSchema is the Flight SQL GetTables layout used by SerializeCatalog.
var TablesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "catalog_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "db_schema_name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "table_name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "table_type", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

// SerializeCatalog writes one TablesSchema row per table of cat as an Arrow
// IPC stream.
func SerializeCatalog(ctx context.Context, cat catalog.Catalog, allocator memory.Allocator) ([]byte, error) {
	schemas, err := cat.Schemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schemas: %w", err)
	}

	builder := array.NewRecordBuilder(allocator, TablesSchema)
	defer builder.Release()

	catalogNameBuilder := builder.Field(0).(*array.StringBuilder)
	schemaNameBuilder := builder.Field(1).(*array.StringBuilder)
	tableNameBuilder := builder.Field(2).(*array.StringBuilder)
	tableTypeBuilder := builder.Field(3).(*array.StringBuilder)

	for _, schema := range schemas {
		tables, err := schema.Tables(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tables for schema %s: %w", schema.Name(), err)
		}

		for _, table := range tables {
			catalogNameBuilder.AppendNull()
			schemaNameBuilder.Append(schema.Name())
			tableNameBuilder.Append(table.Name())
			tableTypeBuilder.Append("TABLE")
		}
	}

	record := builder.NewRecordBatch()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(TablesSchema), ipc.WithAllocator(allocator))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write IPC record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close IPC writer: %w", err)
	}

	return buf.Bytes(), nil
}
