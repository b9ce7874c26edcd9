// Package conntracktest provides an in-memory conntrack.Dumper and helpers
// for building flows in tests.
package conntracktest

import (
	"net/netip"
	"sync"

	"github.com/hugr-lab/conntrack-airport/conntrack"
)

// Dumper returns a fixed set of flows. If Gate is non-nil every Dump blocks
// until a value is received from it.
type Dumper struct {
	Flows []conntrack.Flow
	Err   error
	Gate  chan struct{}

	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	closed    bool
}

// Dump implements conntrack.Dumper. It returns a copy of Flows.
func (d *Dumper) Dump() ([]conntrack.Flow, error) {
	d.mu.Lock()
	d.calls++
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()

	if d.Gate != nil {
		<-d.Gate
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]conntrack.Flow(nil), d.Flows...), nil
}

// Close implements conntrack.Dumper.
func (d *Dumper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Calls returns the number of Dump calls so far.
func (d *Dumper) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// MaxConcurrent returns the highest number of overlapping Dump calls seen.
func (d *Dumper) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// Closed reports whether Close was called.
func (d *Dumper) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Addr parses s and returns a pointer to it. It panics on invalid input.
func Addr(s string) *netip.Addr {
	a := netip.MustParseAddr(s)
	return &a
}

func Port(p uint16) *uint16 { return &p }

func ID(id uint32) *uint32 { return &id }

// Tuple returns a fully populated tuple.
func Tuple(src, dst string, proto conntrack.IPProto, sport, dport uint16) *conntrack.Tuple {
	return &conntrack.Tuple{
		Src: Addr(src),
		Dst: Addr(dst),
		Proto: &conntrack.ProtoInfo{
			Number:  proto,
			SrcPort: Port(sport),
			DstPort: Port(dport),
		},
	}
}

// Flow returns a flow whose reply tuple mirrors the origin tuple.
func Flow(id uint32, src, dst string, proto conntrack.IPProto, sport, dport uint16) conntrack.Flow {
	return conntrack.Flow{
		ID:     ID(id),
		Origin: Tuple(src, dst, proto, sport, dport),
		Reply:  Tuple(dst, src, proto, dport, sport),
	}
}
