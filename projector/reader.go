package projector

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/conntrack-airport/columns"
	"github.com/hugr-lab/conntrack-airport/conntrack"
)

// DefaultBatchSize is the number of rows per record when no size is given.
const DefaultBatchSize = 1024

type readerConfig struct {
	batchSize int
	limit     int64
}

// ReaderOption configures NewReader.
type ReaderOption func(*readerConfig)

// WithBatchSize sets the maximum rows per record. Non-positive values keep
// the default.
func WithBatchSize(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLimit caps the total rows returned. Non-positive values mean no limit.
func WithLimit(n int64) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// Reader projects flows into Arrow records on demand. Each call to Next
// builds one record of at most the configured batch size.
type Reader struct {
	refs    atomic.Int64
	builder *array.RecordBuilder
	flows   []conntrack.Flow
	pos     int
	end     int
	size    int
	current arrow.RecordBatch
}

var _ array.RecordReader = (*Reader)(nil)

// NewReader returns a reader over flows with schema columns.Schema().
func NewReader(alloc memory.Allocator, flows []conntrack.Flow, opts ...ReaderOption) *Reader {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	cfg := readerConfig{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	end := len(flows)
	if cfg.limit > 0 && cfg.limit < int64(end) {
		end = int(cfg.limit)
	}

	r := &Reader{
		builder: array.NewRecordBuilder(alloc, columns.Schema()),
		flows:   flows,
		end:     end,
		size:    cfg.batchSize,
	}
	r.refs.Store(1)
	return r
}

func (r *Reader) Retain() {
	r.refs.Add(1)
}

func (r *Reader) Release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	if r.current != nil {
		r.current.Release()
		r.current = nil
	}
	if r.builder != nil {
		r.builder.Release()
		r.builder = nil
	}
	r.flows = nil
}

func (r *Reader) Schema() *arrow.Schema { return columns.Schema() }

// Next builds the next record. It returns false once all flows are consumed.
func (r *Reader) Next() bool {
	if r.current != nil {
		r.current.Release()
		r.current = nil
	}
	if r.builder == nil || r.pos >= r.end {
		return false
	}

	n := min(r.size, r.end-r.pos)
	r.builder.Reserve(n)
	for i := r.pos; i < r.pos+n; i++ {
		AppendRow(r.builder, Project(&r.flows[i]))
	}
	r.pos += n
	r.current = r.builder.NewRecordBatch()
	return true
}

// RecordBatch returns the current record. It is valid until the next call to
// Next or Release.
func (r *Reader) RecordBatch() arrow.RecordBatch { return r.current }

// Record is kept for callers of the older RecordReader method set.
func (r *Reader) Record() arrow.RecordBatch { return r.current }

func (r *Reader) Err() error { return nil }

// Remaining reports how many rows have not been returned yet.
func (r *Reader) Remaining() int { return r.end - r.pos }
