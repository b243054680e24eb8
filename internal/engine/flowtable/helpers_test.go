package flowtable

import (
	"net"
	"time"

	"FlowChains/internal/core/model"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func u32(v uint32) *uint32 { return &v }

func tcpPacket(ts time.Time, flags model.TCPFlags, seq *uint32, data string) *model.PacketRecord {
	return tcpBetween(ts, "10.0.0.1", "93.184.216.34", 50000, 80, flags, seq, data)
}

func tcpBetween(ts time.Time, src, dst string, sport, dport uint16, flags model.TCPFlags, seq *uint32, data string) *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp: ts,
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP(src), Dst: net.ParseIP(dst)},
		Transport: &model.TransportLayer{
			Type:    model.TransportTCP,
			SrcPort: model.PortOf(sport),
			DstPort: model.PortOf(dport),
			Seq:     seq,
			Flags:   flags,
			Data:    []byte(data),
		},
	}
}

func udpPacket(ts time.Time, sport uint16, data string) *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp: ts,
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("8.8.8.8")},
		Transport: &model.TransportLayer{
			Type:    model.TransportUDP,
			SrcPort: model.PortOf(sport),
			DstPort: model.PortOf(53),
			Data:    []byte(data),
		},
	}
}

func arpPacket(ts time.Time) *model.PacketRecord {
	return &model.PacketRecord{Timestamp: ts}
}

func totalPackets(flows []*model.FlowRecord) int {
	n := 0
	for _, f := range flows {
		n += len(f.Packets)
	}
	return n
}
