package columns

import (
	"net/netip"
	"strconv"
)

// Value is a nullable scalar of one of the catalog types.
type Value struct {
	typ   Type
	valid bool
	num   uint32
	addr  netip.Addr
}

// Null returns the null value of type t.
func Null(t Type) Value { return Value{typ: t} }

func Uint32Value(v uint32) Value { return Value{typ: TypeUint32, valid: true, num: v} }
func Uint16Value(v uint16) Value { return Value{typ: TypeUint16, valid: true, num: uint32(v)} }
func Uint8Value(v uint8) Value   { return Value{typ: TypeUint8, valid: true, num: uint32(v)} }

// InetValue returns an address value.
func InetValue(a netip.Addr) Value { return Value{typ: TypeInet, valid: true, addr: a} }

// Type returns the value's column type.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return !v.valid }

func (v Value) Uint32() (uint32, bool) {
	return v.num, v.valid && v.typ == TypeUint32
}

func (v Value) Uint16() (uint16, bool) {
	return uint16(v.num), v.valid && v.typ == TypeUint16
}

func (v Value) Uint8() (uint8, bool) {
	return uint8(v.num), v.valid && v.typ == TypeUint8
}

func (v Value) Addr() (netip.Addr, bool) {
	return v.addr, v.valid && v.typ == TypeInet
}

// String renders v as SQL would print it; null renders as NULL.
func (v Value) String() string {
	if !v.valid {
		return "NULL"
	}
	if v.typ == TypeInet {
		return v.addr.String()
	}
	return strconv.FormatUint(uint64(v.num), 10)
}
