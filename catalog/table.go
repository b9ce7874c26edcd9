package catalog

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Table represents a queryable table with a fixed schema.
// Implementations MUST be goroutine-safe.
type Table interface {
	// Name returns the table name.
	Name() string

	// Comment returns optional table documentation.
	Comment() string

	// ArrowSchema returns the table schema, projected to columns when
	// columns is non-empty.
	ArrowSchema(columns []string) *arrow.Schema

	// Scan returns the table rows. The reader schema MUST equal
	// ArrowSchema(nil); the client projects columns itself.
	// Caller MUST call reader.Release() to free memory.
	Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error)
}

// InsertableTable is a Table that accepts INSERT.
type InsertableTable interface {
	Table
	Insert(ctx context.Context, rows array.RecordReader, opts *DMLOptions) (*DMLResult, error)
}

// UpdatableTable is a Table that accepts UPDATE. rows carries the rowid
// column followed by the new values.
type UpdatableTable interface {
	Table
	Update(ctx context.Context, rows array.RecordReader, opts *DMLOptions) (*DMLResult, error)
}

// DeletableTable is a Table that accepts DELETE. rows carries the rowid
// column only.
type DeletableTable interface {
	Table
	Delete(ctx context.Context, rows array.RecordReader, opts *DMLOptions) (*DMLResult, error)
}
