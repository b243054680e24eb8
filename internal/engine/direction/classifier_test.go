package direction

import (
	"net"
	"testing"

	"FlowChains/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcp(flags model.TCPFlags, sport, dport uint16) *model.PacketRecord {
	return &model.PacketRecord{
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("10.0.0.2")},
		Transport: &model.TransportLayer{Type: model.TransportTCP, SrcPort: model.PortOf(sport), DstPort: model.PortOf(dport), Flags: flags},
	}
}

func udp(src, dst string, sport, dport uint16) *model.PacketRecord {
	return &model.PacketRecord{
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP(src), Dst: net.ParseIP(dst)},
		Transport: &model.TransportLayer{Type: model.TransportUDP, SrcPort: model.PortOf(sport), DstPort: model.PortOf(dport)},
	}
}

func noPorts(src, dst string) *model.PacketRecord {
	return &model.PacketRecord{
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP(src), Dst: net.ParseIP(dst)},
		Transport: &model.TransportLayer{Type: model.TransportICMP},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		packet *model.PacketRecord
		want   model.Direction
	}{
		{"syn_ack is a server reply", tcp(model.FlagSynAck, 80, 50000), model.STC},
		{"fin_ack is a server reply", tcp(model.FlagFinAck, 50000, 80), model.STC},
		{"syn is a client", tcp(model.FlagSyn, 80, 50000), model.CTS},
		{"fin is a client", tcp(model.FlagFin, 80, 50000), model.CTS},
		{"high port to low port", udp("8.8.8.8", "9.9.9.9", 50000, 53), model.CTS},
		{"low port to high port", udp("8.8.8.8", "9.9.9.9", 53, 50000), model.STC},
		{"both high, numeric tie-break smaller source", udp("8.8.8.8", "9.9.9.9", 2000, 3000), model.STC},
		{"both high, numeric tie-break larger source", udp("8.8.8.8", "9.9.9.9", 3000, 2000), model.CTS},
		{"equal ports", udp("8.8.8.8", "9.9.9.9", 4000, 4000), model.CTS},
		{"internal to external", noPorts("192.168.1.10", "8.8.8.8"), model.CTS},
		{"external to internal", noPorts("8.8.8.8", "10.1.1.1"), model.STC},
		{"both internal", noPorts("10.0.0.1", "10.0.0.2"), model.CTS},
		{"no layers", &model.PacketRecord{}, model.CTS},
		{"nil packet", nil, model.CTS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.packet))
		})
	}
}

func TestFlagsBeatPorts(t *testing.T) {
	// ports alone would say STC
	require.Equal(t, model.CTS, Classify(tcp(model.FlagSyn, 80, 50000)))
	require.Equal(t, model.STC, Classify(tcp(0, 80, 50000)))
}

func TestLocality(t *testing.T) {
	cidr := DefaultCIDRLocality()
	prefix := PrefixLocality{}

	tests := []struct {
		ip         string
		wantCIDR   bool
		wantPrefix bool
	}{
		{"10.1.2.3", true, true},
		{"172.16.5.5", true, true},
		{"172.20.0.1", true, false},
		{"192.168.0.1", true, true},
		{"169.254.10.1", true, true},
		{"8.8.8.8", false, false},
		{"fd12::1", true, true},
		{"fe80::1", true, true},
		{"fdff::1", true, true},
		{"2001:db8::1", false, false},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		assert.Equal(t, tt.wantCIDR, cidr.IsInternal(ip), "cidr %s", tt.ip)
		assert.Equal(t, tt.wantPrefix, prefix.IsInternal(ip), "prefix %s", tt.ip)
	}
	assert.False(t, cidr.IsInternal(nil))
	assert.False(t, prefix.IsInternal(nil))
}

func TestNewLocality(t *testing.T) {
	l, err := NewLocality("prefix")
	require.NoError(t, err)
	require.IsType(t, PrefixLocality{}, l)

	l, err = NewLocality("")
	require.NoError(t, err)
	require.IsType(t, &CIDRLocality{}, l)

	_, err = NewLocality("guess")
	require.Error(t, err)

	_, err = NewCIDRLocality("not-a-cidr")
	require.Error(t, err)
}

func TestClassifierUsesLocality(t *testing.T) {
	c := NewClassifier(PrefixLocality{})
	// 172.20/16 is internal by CIDR only
	require.Equal(t, model.CTS, c.Classify(noPorts("8.8.8.8", "172.20.0.1")))
	require.Equal(t, model.STC, Classify(noPorts("8.8.8.8", "172.20.0.1")))
}
