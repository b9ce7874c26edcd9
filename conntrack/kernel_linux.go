//go:build linux

package conntrack

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/mdlayher/netlink"
	ct "github.com/ti-mo/conntrack"
)

// kernelDumper reads the conntrack table over a netfilter netlink socket.
type kernelDumper struct {
	conn *ct.Conn
	ns   *os.File
}

func dialKernel(cfg connectConfig) (Dumper, error) {
	nlcfg := &netlink.Config{}

	var ns *os.File
	if cfg.netns != "" {
		f, err := os.Open(cfg.netns)
		if err != nil {
			return nil, fmt.Errorf("open network namespace: %w", err)
		}
		ns = f
		nlcfg.NetNS = int(f.Fd())
	}

	conn, err := ct.Dial(nlcfg)
	if err != nil {
		if ns != nil {
			ns.Close()
		}
		return nil, err
	}
	return &kernelDumper{conn: conn, ns: ns}, nil
}

func (k *kernelDumper) Dump() ([]Flow, error) {
	kflows, err := k.conn.Dump(nil)
	if err != nil {
		return nil, err
	}
	flows := make([]Flow, len(kflows))
	for i := range kflows {
		flows[i] = fromKernelFlow(&kflows[i])
	}
	return flows, nil
}

func (k *kernelDumper) Close() error {
	err := k.conn.Close()
	if k.ns != nil {
		if nsErr := k.ns.Close(); err == nil {
			err = nsErr
		}
	}
	return err
}

func fromKernelFlow(kf *ct.Flow) Flow {
	var f Flow
	if kf.ID != 0 {
		id := kf.ID
		f.ID = &id
	}
	f.Origin = fromKernelTuple(kf.TupleOrig)
	f.Reply = fromKernelTuple(kf.TupleReply)
	return f
}

// fromKernelTuple maps zero values reported by the kernel library to absent
// fields. Ports are only kept for protocols that carry them.
func fromKernelTuple(kt ct.Tuple) *Tuple {
	var t Tuple
	if a := kt.IP.SourceAddress; a.IsValid() {
		t.Src = addrPtr(a)
	}
	if a := kt.IP.DestinationAddress; a.IsValid() {
		t.Dst = addrPtr(a)
	}
	if kt.Proto.Protocol != 0 {
		p := &ProtoInfo{Number: IPProto(kt.Proto.Protocol)}
		if p.Number.HasPorts() {
			sport, dport := kt.Proto.SourcePort, kt.Proto.DestinationPort
			p.SrcPort = &sport
			p.DstPort = &dport
		}
		t.Proto = p
	}
	if t.Src == nil && t.Dst == nil && t.Proto == nil {
		return nil
	}
	return &t
}

func addrPtr(a netip.Addr) *netip.Addr {
	a = a.Unmap()
	return &a
}
