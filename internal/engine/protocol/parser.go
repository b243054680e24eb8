package protocol

import (
	"FlowChains/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// ErrNoPacket is returned by ParsePacket for an empty frame.
var ErrNoPacket = errors.New("protocol: empty frame")

// ParsePacket decodes a raw frame captured on a link of the given type.
func ParsePacket(data []byte, linkType layers.LinkType, ci gopacket.CaptureInfo) (*model.PacketRecord, error) {
	if len(data) == 0 {
		return nil, ErrNoPacket
	}
	packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	md := packet.Metadata()
	md.CaptureInfo = ci
	return Decode(packet), nil
}

// Decode extracts a packet record from an already decoded gopacket packet.
// Layers that are missing or not understood leave the matching section nil:
// an ARP frame yields a record with only a timestamp.
func Decode(packet gopacket.Packet) *model.PacketRecord {
	rec := &model.PacketRecord{}
	if md := packet.Metadata(); md != nil {
		rec.Timestamp = md.Timestamp
	}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.Network = &model.NetworkLayer{
			Type:   model.NetworkIPv4,
			Src:    ip.SrcIP,
			Dst:    ip.DstIP,
			Length: int(ip.Length),
			TTL:    ip.TTL,
		}
	case *layers.IPv6:
		rec.Network = &model.NetworkLayer{
			Type:   model.NetworkIPv6,
			Src:    ip.SrcIP,
			Dst:    ip.DstIP,
			Length: int(ip.Length),
			TTL:    ip.HopLimit,
		}
	default:
		return rec
	}

	rec.Transport = transport(packet)
	return rec
}

func transport(packet gopacket.Packet) *model.TransportLayer {
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		seq := tcp.Seq
		return &model.TransportLayer{
			Type:    model.TransportTCP,
			SrcPort: model.PortOf(uint16(tcp.SrcPort)),
			DstPort: model.PortOf(uint16(tcp.DstPort)),
			Seq:     &seq,
			Flags:   Flags(tcp),
			Data:    tcp.Payload,
		}
	}
	if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		return &model.TransportLayer{
			Type:    model.TransportUDP,
			SrcPort: model.PortOf(uint16(udp.SrcPort)),
			DstPort: model.PortOf(uint16(udp.DstPort)),
			Data:    udp.Payload,
		}
	}
	if l := packet.Layer(layers.LayerTypeICMPv4); l != nil {
		return &model.TransportLayer{Type: model.TransportICMP, Data: l.LayerPayload()}
	}
	if l := packet.Layer(layers.LayerTypeICMPv6); l != nil {
		return &model.TransportLayer{Type: model.TransportICMP6, Data: l.LayerPayload()}
	}
	return nil
}

// Flags maps the raw TCP control bits to the single readable flag the flow
// state machine understands. SYN wins over FIN, which wins over RST; ACK
// turns SYN and FIN into their reply forms.
func Flags(tcp *layers.TCP) model.TCPFlags {
	switch {
	case tcp.SYN && tcp.ACK:
		return model.FlagSynAck
	case tcp.SYN:
		return model.FlagSyn
	case tcp.FIN && tcp.ACK:
		return model.FlagFinAck
	case tcp.FIN:
		return model.FlagFin
	case tcp.RST:
		return model.FlagRst
	default:
		return 0
	}
}
