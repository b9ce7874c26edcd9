// Package columns is the column catalog of the Connections table: the fixed,
// ordered list of columns, how each one is read from a conntrack.Flow, and
// which directional filter slot it constrains.
//
// The catalog is built once at package initialization and never changes.
package columns

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/conntrack-airport/conntrack"
)

// Type is the semantic type of a column.
type Type uint8

const (
	TypeUint32 Type = iota + 1
	TypeInet
	TypeUint8
	TypeUint16
)

func (t Type) String() string {
	switch t {
	case TypeUint32:
		return "uint32"
	case TypeInet:
		return "inet"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	}
	return "invalid"
}

// ArrowType returns the Arrow type used to carry values of t.
// Addresses travel as their dotted-quad text.
func (t Type) ArrowType() arrow.DataType {
	switch t {
	case TypeUint32:
		return arrow.PrimitiveTypes.Uint32
	case TypeInet:
		return arrow.BinaryTypes.String
	case TypeUint8:
		return arrow.PrimitiveTypes.Uint8
	case TypeUint16:
		return arrow.PrimitiveTypes.Uint16
	}
	return arrow.Null
}

// Field identifies the part of a flow a column reads.
type Field uint8

const (
	FieldID Field = iota
	FieldSrc
	FieldDst
	FieldProtoNum
	FieldProtoSrcPort
	FieldProtoDstPort
)

var (
	// ErrNotFilterable is returned by Apply for columns without a filter slot.
	ErrNotFilterable = errors.New("column cannot be pushed into a conntrack filter")

	// ErrTypeMismatch is returned by Apply when the value type differs from the column type.
	ErrTypeMismatch = errors.New("value type does not match column type")
)

// MetadataKeyType is the Arrow field metadata key carrying the semantic type.
const MetadataKeyType = "conntrack.type"

// Column describes one column of the table.
type Column struct {
	Name      string
	Type      Type
	Direction conntrack.Direction
	Field     Field

	extract func(*conntrack.Flow) Value
	set     func(*conntrack.DirFilterBuilder, Value) bool
}

// Nullable is always true: the kernel may omit any field.
func (c Column) Nullable() bool { return true }

func (c Column) ArrowType() arrow.DataType { return c.Type.ArrowType() }

// ArrowField renders the column as an Arrow field.
func (c Column) ArrowField() arrow.Field {
	f := arrow.Field{Name: c.Name, Type: c.ArrowType(), Nullable: c.Nullable()}
	if c.Type == TypeInet {
		f.Metadata = arrow.NewMetadata([]string{MetadataKeyType}, []string{"ipv4"})
	}
	return f
}

// Extract reads the column's value from flow. Missing data at any level
// yields a null value.
func (c Column) Extract(flow *conntrack.Flow) Value {
	if flow == nil || c.extract == nil {
		return Null(c.Type)
	}
	return c.extract(flow)
}

// Filterable reports whether the column maps to a directional filter slot.
func (c Column) Filterable() bool {
	return c.set != nil && c.Direction != conntrack.DirNone
}

// Apply installs v as an equality constraint on b. The caller picks the
// builder matching c.Direction.
func (c Column) Apply(b *conntrack.DirFilterBuilder, v Value) error {
	if !c.Filterable() {
		return fmt.Errorf("%w: %s", ErrNotFilterable, c.Name)
	}
	if v.IsNull() || v.Type() != c.Type || !c.set(b, v) {
		return fmt.Errorf("%w: column %s is %s, value is %s", ErrTypeMismatch, c.Name, c.Type, v.Type())
	}
	return nil
}

type fieldDef struct {
	suffix    string
	typ       Type
	fromTuple func(*conntrack.Tuple) Value
	set       func(*conntrack.DirFilterBuilder, Value) bool
}

// tupleFields lists the per-direction fields in column order.
var tupleFields = []struct {
	field Field
	def   fieldDef
}{
	{FieldSrc, fieldDef{
		suffix: "ipv4_src",
		typ:    TypeInet,
		fromTuple: func(t *conntrack.Tuple) Value {
			return addrValue(t.Src)
		},
		set: func(b *conntrack.DirFilterBuilder, v Value) bool {
			a, ok := v.Addr()
			if ok {
				b.IPv4Src(a)
			}
			return ok
		},
	}},
	{FieldDst, fieldDef{
		suffix: "ipv4_dst",
		typ:    TypeInet,
		fromTuple: func(t *conntrack.Tuple) Value {
			return addrValue(t.Dst)
		},
		set: func(b *conntrack.DirFilterBuilder, v Value) bool {
			a, ok := v.Addr()
			if ok {
				b.IPv4Dst(a)
			}
			return ok
		},
	}},
	{FieldProtoNum, fieldDef{
		suffix: "l4_proto",
		typ:    TypeUint8,
		fromTuple: func(t *conntrack.Tuple) Value {
			if t.Proto == nil {
				return Null(TypeUint8)
			}
			return Uint8Value(uint8(t.Proto.Number))
		},
		set: func(b *conntrack.DirFilterBuilder, v Value) bool {
			p, ok := v.Uint8()
			if ok {
				b.L4Proto(conntrack.IPProto(p))
			}
			return ok
		},
	}},
	{FieldProtoSrcPort, fieldDef{
		suffix: "l4_src_port",
		typ:    TypeUint16,
		fromTuple: func(t *conntrack.Tuple) Value {
			if t.Proto == nil {
				return Null(TypeUint16)
			}
			return portValue(t.Proto.SrcPort)
		},
		set: func(b *conntrack.DirFilterBuilder, v Value) bool {
			p, ok := v.Uint16()
			if ok {
				b.L4SrcPort(p)
			}
			return ok
		},
	}},
	{FieldProtoDstPort, fieldDef{
		suffix: "l4_dst_port",
		typ:    TypeUint16,
		fromTuple: func(t *conntrack.Tuple) Value {
			if t.Proto == nil {
				return Null(TypeUint16)
			}
			return portValue(t.Proto.DstPort)
		},
		set: func(b *conntrack.DirFilterBuilder, v Value) bool {
			p, ok := v.Uint16()
			if ok {
				b.L4DstPort(p)
			}
			return ok
		},
	}},
}

var (
	catalog []Column
	byName  map[string]int
	schema  *arrow.Schema
)

func init() {
	catalog = append(catalog, Column{
		Name:      "id",
		Type:      TypeUint32,
		Direction: conntrack.DirNone,
		Field:     FieldID,
		extract: func(f *conntrack.Flow) Value {
			if f.ID == nil {
				return Null(TypeUint32)
			}
			return Uint32Value(*f.ID)
		},
	})
	catalog = append(catalog, directional("orig_", conntrack.DirOrigin)...)
	catalog = append(catalog, directional("reply_", conntrack.DirReply)...)

	byName = make(map[string]int, len(catalog))
	slots := make(map[[2]uint8]string, len(catalog))
	fields := make([]arrow.Field, len(catalog))
	for i, c := range catalog {
		if _, dup := byName[c.Name]; dup {
			panic("columns: duplicate column name " + c.Name)
		}
		byName[c.Name] = i

		slot := [2]uint8{uint8(c.Direction), uint8(c.Field)}
		if other, dup := slots[slot]; dup {
			panic("columns: " + c.Name + " and " + other + " share a filter slot")
		}
		slots[slot] = c.Name

		fields[i] = c.ArrowField()
	}
	schema = arrow.NewSchema(fields, nil)
}

func directional(prefix string, dir conntrack.Direction) []Column {
	cols := make([]Column, 0, len(tupleFields))
	for _, tf := range tupleFields {
		def := tf.def
		cols = append(cols, Column{
			Name:      prefix + def.suffix,
			Type:      def.typ,
			Direction: dir,
			Field:     tf.field,
			extract: func(f *conntrack.Flow) Value {
				t := f.Tuple(dir)
				if t == nil {
					return Null(def.typ)
				}
				return def.fromTuple(t)
			},
			set: def.set,
		})
	}
	return cols
}

func addrValue(a *netip.Addr) Value {
	if a == nil || !a.IsValid() {
		return Null(TypeInet)
	}
	return InetValue(*a)
}

func portValue(p *uint16) Value {
	if p == nil {
		return Null(TypeUint16)
	}
	return Uint16Value(*p)
}

// All returns the columns in table order.
func All() []Column {
	return append([]Column(nil), catalog...)
}

// Len returns the number of columns.
func Len() int { return len(catalog) }

// Lookup returns the column with the given name.
func Lookup(name string) (Column, bool) {
	i, ok := byName[name]
	if !ok {
		return Column{}, false
	}
	return catalog[i], true
}

// Index returns the position of the named column.
func Index(name string) (int, bool) {
	i, ok := byName[name]
	return i, ok
}

// Schema returns the Arrow schema of the table.
func Schema() *arrow.Schema { return schema }
