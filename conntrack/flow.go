// Package conntrack models kernel connection-tracking flows and the
// directional filters used to narrow a dump.
//
// A Flow is a tree of optional values: the kernel may omit the identifier,
// either tuple, an address, the protocol info, or the ports. Every level is a
// pointer so callers can tell "absent" from a zero value.
//
// The Handle type wraps a single kernel connection. Dumps through a Handle
// are serialized; filtering and everything after it run outside the lock.
package conntrack

import (
	"net/netip"
	"strconv"
)

// IPProto is an IP protocol number as carried in the layer-4 tuple.
type IPProto uint8

// Well-known protocol numbers.
const (
	ProtoICMP    IPProto = 1
	ProtoTCP     IPProto = 6
	ProtoUDP     IPProto = 17
	ProtoDCCP    IPProto = 33
	ProtoGRE     IPProto = 47
	ProtoICMPv6  IPProto = 58
	ProtoSCTP    IPProto = 132
	ProtoUDPLite IPProto = 136
)

var protoNames = map[IPProto]string{
	ProtoICMP:    "icmp",
	ProtoTCP:     "tcp",
	ProtoUDP:     "udp",
	ProtoDCCP:    "dccp",
	ProtoGRE:     "gre",
	ProtoICMPv6:  "icmpv6",
	ProtoSCTP:    "sctp",
	ProtoUDPLite: "udplite",
}

func (p IPProto) String() string {
	if name, ok := protoNames[p]; ok {
		return name
	}
	return "proto-" + strconv.Itoa(int(p))
}

// HasPorts reports whether flows of this protocol carry layer-4 ports.
func (p IPProto) HasPorts() bool {
	switch p {
	case ProtoTCP, ProtoUDP, ProtoDCCP, ProtoSCTP, ProtoUDPLite:
		return true
	}
	return false
}

// Flow is one tracked connection as reported by a dump.
type Flow struct {
	ID     *uint32
	Origin *Tuple
	Reply  *Tuple
}

// Tuple is the endpoint and protocol information for one direction of a flow.
type Tuple struct {
	Src   *netip.Addr
	Dst   *netip.Addr
	Proto *ProtoInfo
}

// ProtoInfo holds the layer-4 part of a tuple.
type ProtoInfo struct {
	Number  IPProto
	SrcPort *uint16
	DstPort *uint16
}

// Tuple returns the tuple for the given direction, or nil.
func (f *Flow) Tuple(dir Direction) *Tuple {
	if f == nil {
		return nil
	}
	switch dir {
	case DirOrigin:
		return f.Origin
	case DirReply:
		return f.Reply
	}
	return nil
}

// Direction selects the origin or reply side of a flow.
type Direction uint8

const (
	DirNone Direction = iota
	DirOrigin
	DirReply
)

func (d Direction) String() string {
	switch d {
	case DirOrigin:
		return "origin"
	case DirReply:
		return "reply"
	}
	return "none"
}
