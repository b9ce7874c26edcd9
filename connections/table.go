// Package connections implements the Connections table: a read-only view of
// the kernel connection tracking table served through the catalog
// interfaces.
package connections

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/conntrack-airport/catalog"
	"github.com/hugr-lab/conntrack-airport/columns"
	"github.com/hugr-lab/conntrack-airport/conntrack"
	"github.com/hugr-lab/conntrack-airport/metrics"
	"github.com/hugr-lab/conntrack-airport/predicate"
	"github.com/hugr-lab/conntrack-airport/projector"
)

// TableName is the only table this package serves.
const TableName = "Connections"

// DefaultComment advertises that pushed-down filters are advisory.
const DefaultComment = "Live kernel connection tracking entries. " +
	"Filter pushdown is best-effort: only AND-ed column = literal predicates narrow the dump."

// Table is the Connections table. It is safe for concurrent use; scans
// serialize on the conntrack handle only for the duration of the dump.
type Table struct {
	handle    *conntrack.Handle
	compiler  *predicate.Compiler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	alloc     memory.Allocator
	comment   string
	batchSize int
}

var (
	_ catalog.Table           = (*Table)(nil)
	_ catalog.InsertableTable = (*Table)(nil)
	_ catalog.UpdatableTable  = (*Table)(nil)
	_ catalog.DeletableTable  = (*Table)(nil)
)

// Option configures a Table.
type Option func(*Table)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) { t.logger = logger }
}

// WithMetrics records scan metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Table) { t.metrics = m }
}

func WithAllocator(alloc memory.Allocator) Option {
	return func(t *Table) { t.alloc = alloc }
}

func WithComment(comment string) Option {
	return func(t *Table) { t.comment = comment }
}

// WithBatchSize sets the default rows per record when the scan gives no hint.
func WithBatchSize(n int) Option {
	return func(t *Table) { t.batchSize = n }
}

// New returns the Connections table over handle. A nil compiler uses one
// logging to the table logger.
func New(handle *conntrack.Handle, compiler *predicate.Compiler, opts ...Option) *Table {
	t := &Table{
		handle:    handle,
		compiler:  compiler,
		logger:    slog.Default(),
		alloc:     memory.DefaultAllocator,
		comment:   DefaultComment,
		batchSize: projector.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.compiler == nil {
		t.compiler = predicate.NewCompiler(t.logger, predicate.WithDropObserver(t.metrics))
	}
	return t
}

func (t *Table) Name() string    { return TableName }
func (t *Table) Comment() string { return t.comment }

// ArrowSchema returns the column catalog as an Arrow schema.
func (t *Table) ArrowSchema(cols []string) *arrow.Schema {
	return catalog.ProjectSchema(columns.Schema(), cols)
}

// Scan compiles the pushdown filter, dumps matching flows and returns a
// reader that projects them lazily. The reader always carries the full
// schema.
func (t *Table) Scan(ctx context.Context, opts *catalog.ScanOptions) (array.RecordReader, error) {
	if opts == nil {
		opts = &catalog.ScanOptions{}
	}
	t.metrics.ObserveScan()

	pd, err := t.compiler.CompileJSON(opts.Filter)
	if err != nil {
		t.metrics.ObserveScanError("compile")
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	t.logger.Debug("Scanning connections",
		"table", TableName,
		"filter", pd.Filter.String(),
		"exact", pd.Exact(),
		"dropped", len(pd.Dropped),
		"columns", opts.Columns,
		"limit", opts.Limit,
	)

	start := time.Now()
	flows, err := t.handle.WithFilter(pd.Filter).Dump(ctx)
	if err != nil {
		t.metrics.ObserveScanError("dump")
		t.logger.Error("Conntrack dump failed", "table", TableName, "error", err)
		return nil, fmt.Errorf("dump connections: %w", err)
	}
	t.metrics.ObserveDump(time.Since(start), len(flows))

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = t.batchSize
	}
	reader := projector.NewReader(t.alloc, flows,
		projector.WithBatchSize(batchSize),
		projector.WithLimit(opts.Limit),
	)
	t.metrics.ObserveReturned(reader.Remaining())
	return reader, nil
}

// Lookup always fails: flow ids are not stable keys.
func (t *Table) Lookup(ctx context.Context, id uint32) (arrow.RecordBatch, error) {
	return nil, fmt.Errorf("%s id %d: %w", TableName, id, catalog.ErrNotFound)
}

func (t *Table) Insert(ctx context.Context, rows array.RecordReader, opts *catalog.DMLOptions) (*catalog.DMLResult, error) {
	return nil, catalog.ErrReadOnly
}

func (t *Table) Update(ctx context.Context, rows array.RecordReader, opts *catalog.DMLOptions) (*catalog.DMLResult, error) {
	return nil, catalog.ErrReadOnly
}

func (t *Table) Delete(ctx context.Context, rows array.RecordReader, opts *catalog.DMLOptions) (*catalog.DMLResult, error) {
	return nil, catalog.ErrReadOnly
}
