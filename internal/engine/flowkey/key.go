package flowkey

import (
	"net"

	"FlowChains/internal/core/model"
)

// Derive computes the flow key of a packet. Missing layers never fail: the
// affected components are left empty, so packets lacking the same layers
// still share a key.
func Derive(p *model.PacketRecord) model.FlowKey {
	var key model.FlowKey
	if p == nil {
		return key
	}

	if n := p.Network; n != nil {
		key.Src = addr(n.Src)
		key.Dst = addr(n.Dst)
		key.Protocol = n.Type
	}

	// Ports are carried over only when the transport actually has them;
	// the decoder leaves them invalid for ICMP and friends.
	if t := p.Transport; t != nil {
		key.SrcPort = t.SrcPort
		key.DstPort = t.DstPort
		key.Protocol = t.Type
	}
	return key
}

func addr(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}
