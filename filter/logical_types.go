package filter

import (
	"math"
	"strconv"
)

// LogicalTypeID identifies a DuckDB data type.
type LogicalTypeID string

const (
	TypeIDInvalid   LogicalTypeID = "INVALID"
	TypeIDSQLNull   LogicalTypeID = "SQLNULL"
	TypeIDBoolean   LogicalTypeID = "BOOLEAN"
	TypeIDTinyInt   LogicalTypeID = "TINYINT"
	TypeIDSmallInt  LogicalTypeID = "SMALLINT"
	TypeIDInteger   LogicalTypeID = "INTEGER"
	TypeIDBigInt    LogicalTypeID = "BIGINT"
	TypeIDUTinyInt  LogicalTypeID = "UTINYINT"
	TypeIDUSmallInt LogicalTypeID = "USMALLINT"
	TypeIDUInteger  LogicalTypeID = "UINTEGER"
	TypeIDUBigInt   LogicalTypeID = "UBIGINT"
	TypeIDHugeInt   LogicalTypeID = "HUGEINT"
	TypeIDUHugeInt  LogicalTypeID = "UHUGEINT"
	TypeIDFloat     LogicalTypeID = "FLOAT"
	TypeIDDouble    LogicalTypeID = "DOUBLE"
	TypeIDDecimal   LogicalTypeID = "DECIMAL"
	TypeIDChar      LogicalTypeID = "CHAR"
	TypeIDVarchar   LogicalTypeID = "VARCHAR"
	TypeIDBlob      LogicalTypeID = "BLOB"
	TypeIDInet      LogicalTypeID = "INET"
)

// aliases maps alternative spellings DuckDB may send to the canonical ID.
var aliases = map[LogicalTypeID]LogicalTypeID{
	"INT":     TypeIDInteger,
	"INT4":    TypeIDInteger,
	"INT8":    TypeIDBigInt,
	"INT2":    TypeIDSmallInt,
	"INT1":    TypeIDTinyInt,
	"UINT8":   TypeIDUBigInt,
	"UINT4":   TypeIDUInteger,
	"UINT2":   TypeIDUSmallInt,
	"UINT1":   TypeIDUTinyInt,
	"INT128":  TypeIDHugeInt,
	"UINT128": TypeIDUHugeInt,
	"FLOAT4":  TypeIDFloat,
	"FLOAT8":  TypeIDDouble,
	"REAL":    TypeIDFloat,
	"STRING":  TypeIDVarchar,
	"TEXT":    TypeIDVarchar,
	"BOOL":    TypeIDBoolean,
}

// Normalize returns the canonical ID for t.
func (t LogicalTypeID) Normalize() LogicalTypeID {
	if mapped, ok := aliases[t]; ok {
		return mapped
	}
	return t
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t LogicalTypeID) IsInteger() bool {
	return t.IsSigned() || t.IsUnsigned()
}

func (t LogicalTypeID) IsSigned() bool {
	switch t {
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt, TypeIDHugeInt:
		return true
	}
	return false
}

func (t LogicalTypeID) IsUnsigned() bool {
	switch t {
	case TypeIDUTinyInt, TypeIDUSmallInt, TypeIDUInteger, TypeIDUBigInt, TypeIDUHugeInt:
		return true
	}
	return false
}

// IsString reports whether t is a character type.
func (t LogicalTypeID) IsString() bool {
	return t == TypeIDVarchar || t == TypeIDChar
}

// LogicalType is a DuckDB type. Extra type info (decimal width, nested
// children) is not retained.
type LogicalType struct {
	ID LogicalTypeID
}

// Value is a typed constant.
type Value struct {
	Type   LogicalType
	IsNull bool

	// Data is int64 for signed integers, uint64 for unsigned integers,
	// HugeInt/UHugeInt for 128-bit integers, float64 for FLOAT and DOUBLE,
	// string for VARCHAR and DECIMAL, bool for BOOLEAN, and the decoded JSON
	// value otherwise.
	Data any
}

// HugeInt is a 128-bit signed integer.
type HugeInt struct {
	Upper int64  `json:"upper"`
	Lower uint64 `json:"lower"`
}

// UHugeInt is a 128-bit unsigned integer.
type UHugeInt struct {
	Upper uint64 `json:"upper"`
	Lower uint64 `json:"lower"`
}

// StringValue returns a VARCHAR constant.
func StringValue(s string) Value {
	return Value{Type: LogicalType{ID: TypeIDVarchar}, Data: s}
}

// IntValue returns a BIGINT constant.
func IntValue(i int64) Value {
	return Value{Type: LogicalType{ID: TypeIDBigInt}, Data: i}
}

// UintValue returns a UBIGINT constant.
func UintValue(u uint64) Value {
	return Value{Type: LogicalType{ID: TypeIDUBigInt}, Data: u}
}

// NullValue returns a NULL constant.
func NullValue() Value {
	return Value{Type: LogicalType{ID: TypeIDSQLNull}, IsNull: true}
}

// Uint64 returns the value as an unsigned integer when it is a non-null,
// non-negative integer that fits in 64 bits.
func (v Value) Uint64() (uint64, bool) {
	if v.IsNull || !v.Type.ID.IsInteger() {
		return 0, false
	}
	switch d := v.Data.(type) {
	case int64:
		if d < 0 {
			return 0, false
		}
		return uint64(d), true
	case uint64:
		return d, true
	case HugeInt:
		if d.Upper != 0 {
			return 0, false
		}
		return d.Lower, true
	case UHugeInt:
		if d.Upper != 0 {
			return 0, false
		}
		return d.Lower, true
	case float64:
		// JSON numbers decoded without a known width.
		if d < 0 || d > math.MaxUint64 || d != math.Trunc(d) {
			return 0, false
		}
		return uint64(d), true
	}
	return 0, false
}

// Text returns the value as a string when it is a non-null character value.
func (v Value) Text() (string, bool) {
	if v.IsNull || !v.Type.ID.IsString() {
		return "", false
	}
	s, ok := v.Data.(string)
	return s, ok
}

// String renders the value as a SQL literal.
func (v Value) String() string {
	if v.IsNull {
		return "NULL"
	}
	switch d := v.Data.(type) {
	case string:
		if v.Type.ID == TypeIDDecimal {
			return d
		}
		return quoteLiteral(d)
	case int64:
		return strconv.FormatInt(d, 10)
	case uint64:
		return strconv.FormatUint(d, 10)
	case float64:
		return strconv.FormatFloat(d, 'g', -1, 64)
	case bool:
		if d {
			return "TRUE"
		}
		return "FALSE"
	case HugeInt:
		if d.Upper == 0 {
			return strconv.FormatUint(d.Lower, 10)
		}
	case UHugeInt:
		if d.Upper == 0 {
			return strconv.FormatUint(d.Lower, 10)
		}
	}
	return "<" + string(v.Type.ID) + ">"
}
