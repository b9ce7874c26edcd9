// Package projector turns conntrack flows into rows of the Connections
// table and batches rows into Arrow records.
package projector

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/conntrack-airport/columns"
	"github.com/hugr-lab/conntrack-airport/conntrack"
)

// Row holds one value per catalog column, in catalog order.
type Row []columns.Value

var catalog = columns.All()

// Project extracts every column of flow. Missing data yields nulls; a nil
// flow yields an all-null row.
func Project(flow *conntrack.Flow) Row {
	row := make(Row, len(catalog))
	for i, c := range catalog {
		row[i] = c.Extract(flow)
	}
	return row
}

// AppendRow appends row to b. The builder must use columns.Schema().
func AppendRow(b *array.RecordBuilder, row Row) {
	for i, v := range row {
		appendValue(b.Field(i), v)
	}
}

func appendValue(fb array.Builder, v columns.Value) {
	if v.IsNull() {
		fb.AppendNull()
		return
	}
	switch b := fb.(type) {
	case *array.Uint32Builder:
		n, _ := v.Uint32()
		b.Append(n)
	case *array.Uint16Builder:
		n, _ := v.Uint16()
		b.Append(n)
	case *array.Uint8Builder:
		n, _ := v.Uint8()
		b.Append(n)
	case *array.StringBuilder:
		a, _ := v.Addr()
		b.Append(a.String())
	default:
		panic(fmt.Sprintf("projector: unexpected builder %T for %s value", fb, v.Type()))
	}
}
