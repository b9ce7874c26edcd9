package predicate

import (
	"errors"
	"fmt"
	"math"
	"net/netip"

	"github.com/hugr-lab/conntrack-airport/columns"
	"github.com/hugr-lab/conntrack-airport/filter"
)

var (
	errNullLiteral    = errors.New("NULL literal")
	errWrongKind      = errors.New("literal kind does not match column")
	errNotIPv4        = errors.New("not an IPv4 address")
	errOutOfRange     = errors.New("literal out of range")
	errUnknownColType = errors.New("unknown column type")
)

// convertLiteral converts a literal to a value of column type t.
func convertLiteral(t columns.Type, v filter.Value) (columns.Value, error) {
	if v.IsNull {
		return columns.Value{}, errNullLiteral
	}

	switch t {
	case columns.TypeInet:
		s, ok := v.Text()
		if !ok {
			return columns.Value{}, fmt.Errorf("%w: want string, got %s", errWrongKind, v.Type.ID)
		}
		addr, err := netip.ParseAddr(s)
		if err != nil || !addr.Is4() {
			return columns.Value{}, fmt.Errorf("%w: %q", errNotIPv4, s)
		}
		return columns.InetValue(addr), nil

	case columns.TypeUint8, columns.TypeUint16, columns.TypeUint32:
		u, ok := v.Uint64()
		if !ok {
			return columns.Value{}, fmt.Errorf("%w: want non-negative integer, got %s %s", errWrongKind, v.Type.ID, v)
		}
		switch t {
		case columns.TypeUint8:
			if u > math.MaxUint8 {
				return columns.Value{}, fmt.Errorf("%w: %d > %d", errOutOfRange, u, math.MaxUint8)
			}
			return columns.Uint8Value(uint8(u)), nil
		case columns.TypeUint16:
			if u > math.MaxUint16 {
				return columns.Value{}, fmt.Errorf("%w: %d > %d", errOutOfRange, u, math.MaxUint16)
			}
			return columns.Uint16Value(uint16(u)), nil
		default:
			if u > math.MaxUint32 {
				return columns.Value{}, fmt.Errorf("%w: %d > %d", errOutOfRange, u, uint64(math.MaxUint32))
			}
			return columns.Uint32Value(uint32(u)), nil
		}
	}
	return columns.Value{}, fmt.Errorf("%w: %s", errUnknownColType, t)
}
