package serialize

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/conntrack-airport/catalog"
)

type testTable struct {
	name string
}

func (t *testTable) Name() string    { return t.name }
func (t *testTable) Comment() string { return "" }

func (t *testTable) ArrowSchema([]string) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Uint32}}, nil)
}

func (t *testTable) Scan(context.Context, *catalog.ScanOptions) (array.RecordReader, error) {
	return array.NewRecordReader(t.ArrowSchema(nil), nil)
}

func readTables(t *testing.T, data []byte) [][2]string {
	t.Helper()
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ipc.NewReader: %v", err)
	}
	defer reader.Release()

	if !reader.Schema().Equal(TablesSchema) {
		t.Fatalf("schema = %v, want %v", reader.Schema(), TablesSchema)
	}

	var rows [][2]string
	for reader.Next() {
		rec := reader.RecordBatch()
		catalogNames := rec.Column(0).(*array.String)
		schemaNames := rec.Column(1).(*array.String)
		tableNames := rec.Column(2).(*array.String)
		tableTypes := rec.Column(3).(*array.String)
		for i := 0; i < int(rec.NumRows()); i++ {
			if !catalogNames.IsNull(i) {
				t.Errorf("row %d: catalog_name should be null", i)
			}
			if tableTypes.Value(i) != "TABLE" {
				t.Errorf("row %d: table_type = %q", i, tableTypes.Value(i))
			}
			rows = append(rows, [2]string{schemaNames.Value(i), tableNames.Value(i)})
		}
	}
	return rows
}

func TestSerializeCatalog(t *testing.T) {
	cat := catalog.NewStaticCatalog()
	cat.AddSchema("main", "", &testTable{name: "Connections"})
	cat.AddSchema("archive", "", &testTable{name: "b"}, &testTable{name: "a"})
	cat.AddSchema("empty", "")

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	data, err := SerializeCatalog(context.Background(), cat, mem)
	if err != nil {
		t.Fatalf("SerializeCatalog failed: %v", err)
	}

	rows := readTables(t, data)
	want := [][2]string{{"archive", "a"}, {"archive", "b"}, {"main", "Connections"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestSerializeEmptyCatalog(t *testing.T) {
	data, err := SerializeCatalog(context.Background(), catalog.NewStaticCatalog(), memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("SerializeCatalog failed: %v", err)
	}
	if rows := readTables(t, data); len(rows) != 0 {
		t.Errorf("rows = %v, want none", rows)
	}
}

func TestSerializeContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cat := catalog.NewStaticCatalog()
	cat.AddSchema("main", "", &testTable{name: "Connections"})
	if _, err := SerializeCatalog(ctx, cat, memory.DefaultAllocator); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("orig_ipv4_src"), 100)

	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("compressed %d bytes to %d", len(data), len(compressed))
	}

	got, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}

	empty, err := Compress(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Compress(nil) = %v, %v", empty, err)
	}

	if _, err := Decompress([]byte("not zstd")); err == nil {
		t.Error("expected error for corrupt input")
	}
}

func TestCompressConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := bytes.Repeat([]byte{byte(i)}, 1000+i)
			compressed, err := Compress(data)
			if err != nil {
				t.Errorf("Compress failed: %v", err)
				return
			}
			got, err := Decompress(compressed)
			if err != nil || !bytes.Equal(got, data) {
				t.Errorf("round trip %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
}
