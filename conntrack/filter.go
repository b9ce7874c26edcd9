package conntrack

import (
	"fmt"
	"net/netip"
	"strings"
)

// DirFilter is an immutable set of equality constraints for one direction of
// a flow. The zero value matches every tuple.
type DirFilter struct {
	src     *netip.Addr
	dst     *netip.Addr
	proto   *IPProto
	srcPort *uint16
	dstPort *uint16
}

// Src returns the source address constraint, if any.
func (f DirFilter) Src() (netip.Addr, bool) { return deref(f.src) }

// Dst returns the destination address constraint, if any.
func (f DirFilter) Dst() (netip.Addr, bool) { return deref(f.dst) }

// Proto returns the protocol number constraint, if any.
func (f DirFilter) Proto() (IPProto, bool) { return deref(f.proto) }

// SrcPort returns the source port constraint, if any.
func (f DirFilter) SrcPort() (uint16, bool) { return deref(f.srcPort) }

// DstPort returns the destination port constraint, if any.
func (f DirFilter) DstPort() (uint16, bool) { return deref(f.dstPort) }

// IsEmpty reports whether the filter has no constraints.
func (f DirFilter) IsEmpty() bool {
	return f.src == nil && f.dst == nil && f.proto == nil && f.srcPort == nil && f.dstPort == nil
}

// Match reports whether t satisfies every constraint. A constrained field
// that is absent from t does not match.
func (f DirFilter) Match(t *Tuple) bool {
	if f.IsEmpty() {
		return true
	}
	if t == nil {
		return false
	}
	if f.src != nil && (t.Src == nil || *t.Src != *f.src) {
		return false
	}
	if f.dst != nil && (t.Dst == nil || *t.Dst != *f.dst) {
		return false
	}
	if f.proto == nil && f.srcPort == nil && f.dstPort == nil {
		return true
	}
	p := t.Proto
	if p == nil {
		return false
	}
	if f.proto != nil && p.Number != *f.proto {
		return false
	}
	if f.srcPort != nil && (p.SrcPort == nil || *p.SrcPort != *f.srcPort) {
		return false
	}
	if f.dstPort != nil && (p.DstPort == nil || *p.DstPort != *f.dstPort) {
		return false
	}
	return true
}

func (f DirFilter) String() string {
	var parts []string
	if f.src != nil {
		parts = append(parts, "src="+f.src.String())
	}
	if f.dst != nil {
		parts = append(parts, "dst="+f.dst.String())
	}
	if f.proto != nil {
		parts = append(parts, "proto="+f.proto.String())
	}
	if f.srcPort != nil {
		parts = append(parts, fmt.Sprintf("sport=%d", *f.srcPort))
	}
	if f.dstPort != nil {
		parts = append(parts, fmt.Sprintf("dport=%d", *f.dstPort))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// DirFilterBuilder accumulates constraints for one direction. Setting a field
// twice keeps the last value. Build validates the result.
type DirFilterBuilder struct {
	f DirFilter
}

// NewDirFilterBuilder returns an empty builder.
func NewDirFilterBuilder() *DirFilterBuilder {
	return &DirFilterBuilder{}
}

func (b *DirFilterBuilder) IPv4Src(addr netip.Addr) *DirFilterBuilder {
	b.f.src = &addr
	return b
}

func (b *DirFilterBuilder) IPv4Dst(addr netip.Addr) *DirFilterBuilder {
	b.f.dst = &addr
	return b
}

func (b *DirFilterBuilder) L4Proto(p IPProto) *DirFilterBuilder {
	b.f.proto = &p
	return b
}

func (b *DirFilterBuilder) L4SrcPort(port uint16) *DirFilterBuilder {
	b.f.srcPort = &port
	return b
}

func (b *DirFilterBuilder) L4DstPort(port uint16) *DirFilterBuilder {
	b.f.dstPort = &port
	return b
}

// Build returns the accumulated filter. It fails when an address constraint
// is not a valid IPv4 address.
func (b *DirFilterBuilder) Build() (DirFilter, error) {
	if b.f.src != nil && !isIPv4(*b.f.src) {
		return DirFilter{}, &FieldError{Field: "ipv4_src", Value: b.f.src.String(), Err: ErrInvalidFilter}
	}
	if b.f.dst != nil && !isIPv4(*b.f.dst) {
		return DirFilter{}, &FieldError{Field: "ipv4_dst", Value: b.f.dst.String(), Err: ErrInvalidFilter}
	}
	return b.f, nil
}

func isIPv4(a netip.Addr) bool {
	return a.IsValid() && a.Is4()
}

// Filter pairs the origin and reply constraints. The zero value matches all
// flows.
type Filter struct {
	Orig  DirFilter
	Reply DirFilter
}

// IsEmpty reports whether neither direction is constrained.
func (f Filter) IsEmpty() bool {
	return f.Orig.IsEmpty() && f.Reply.IsEmpty()
}

// Match reports whether flow satisfies both directional filters.
func (f Filter) Match(flow *Flow) bool {
	if f.IsEmpty() {
		return true
	}
	if flow == nil {
		return false
	}
	return f.Orig.Match(flow.Origin) && f.Reply.Match(flow.Reply)
}

func (f Filter) String() string {
	return "orig{" + f.Orig.String() + "} reply{" + f.Reply.String() + "}"
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
