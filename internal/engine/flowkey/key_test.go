package flowkey

import (
	"net"
	"testing"

	"FlowChains/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name   string
		packet *model.PacketRecord
		want   model.FlowKey
	}{
		{
			name: "tcp over ipv4",
			packet: &model.PacketRecord{
				Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("192.168.1.2"), Dst: net.ParseIP("8.8.8.8")},
				Transport: &model.TransportLayer{Type: model.TransportTCP, SrcPort: model.PortOf(51000), DstPort: model.PortOf(443)},
			},
			want: model.FlowKey{Src: "192.168.1.2", Dst: "8.8.8.8", SrcPort: model.PortOf(51000), DstPort: model.PortOf(443), Protocol: "TCP"},
		},
		{
			name: "icmp has no ports",
			packet: &model.PacketRecord{
				Network:   &model.NetworkLayer{Type: model.NetworkIPv6, Src: net.ParseIP("fe80::1"), Dst: net.ParseIP("ff02::1")},
				Transport: &model.TransportLayer{Type: model.TransportICMP6},
			},
			want: model.FlowKey{Src: "fe80::1", Dst: "ff02::1", Protocol: "ICMP6"},
		},
		{
			name: "network only falls back to network type",
			packet: &model.PacketRecord{
				Network: &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("10.0.0.2")},
			},
			want: model.FlowKey{Src: "10.0.0.1", Dst: "10.0.0.2", Protocol: "IP"},
		},
		{
			name:   "no layers at all",
			packet: &model.PacketRecord{},
			want:   model.FlowKey{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.packet))
		})
	}
}

func TestDeriveKeepsFirstSeenOrientation(t *testing.T) {
	request := &model.PacketRecord{
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("10.0.0.2")},
		Transport: &model.TransportLayer{Type: model.TransportUDP, SrcPort: model.PortOf(5353), DstPort: model.PortOf(53)},
	}
	reply := &model.PacketRecord{
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.2"), Dst: net.ParseIP("10.0.0.1")},
		Transport: &model.TransportLayer{Type: model.TransportUDP, SrcPort: model.PortOf(53), DstPort: model.PortOf(5353)},
	}
	require.NotEqual(t, Derive(request), Derive(reply))
	require.Equal(t, Derive(request), Derive(request))
}

func TestEmptyKeysGroupTogether(t *testing.T) {
	a := Derive(&model.PacketRecord{})
	b := Derive(&model.PacketRecord{})
	require.Equal(t, a, b)
	require.Equal(t, "(-, -, -, -, -)", a.String())
}
