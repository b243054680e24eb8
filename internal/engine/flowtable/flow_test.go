package flowtable

import (
	"net"
	"testing"
	"time"

	"FlowChains/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowHandshakeCompletes(t *testing.T) {
	f := NewFlow(DefaultPolicy())

	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagSyn, u32(1), ""), base))
	assert.Equal(t, model.StatePartialSyn, f.State())
	assert.Equal(t, model.CTS, f.Direction())

	require.NoError(t, f.AddPacket(tcpPacket(base.Add(time.Millisecond), model.FlagSynAck, u32(2), ""), base))
	assert.Equal(t, model.StatePartialSyn, f.State())
	assert.Equal(t, model.STC, f.Direction())

	require.NoError(t, f.AddPacket(tcpPacket(base.Add(2*time.Millisecond), model.FlagFinAck, u32(3), ""), base))
	assert.Equal(t, model.StateComplete, f.State())
	assert.Equal(t, model.STC, f.Direction())
	assert.False(t, f.Ready(base))
	assert.True(t, f.Ready(base.Add(DefaultGracePeriod)))
}

func TestFlowFinWithoutSynStaysPartial(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	now := base.Add(5 * time.Second)

	require.NoError(t, f.AddPacket(tcpPacket(base, 0, u32(1), "a"), base))
	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagFin, u32(2), ""), now))

	assert.Equal(t, model.StatePartial, f.State())
	assert.Equal(t, now.Add(DefaultGracePeriod), f.Deadline())
	assert.False(t, f.Ready(now))
	assert.True(t, f.Ready(now.Add(DefaultGracePeriod)))
}

func TestFlowCompleteNeverRegresses(t *testing.T) {
	f := NewFlow(DefaultPolicy())

	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagSyn, nil, ""), base))
	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagFin, nil, ""), base))
	require.Equal(t, model.StateComplete, f.State())

	for _, flags := range []model.TCPFlags{model.FlagRst, model.FlagSyn, model.FlagSynAck, 0} {
		require.NoError(t, f.AddPacket(tcpPacket(base, flags, nil, ""), base))
		assert.Equal(t, model.StateComplete, f.State(), "after %s", flags)
	}
}

func TestFlowRstResetsToPartial(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	now := base.Add(10 * time.Second)

	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagSyn, nil, ""), base))
	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagRst, nil, ""), now))

	assert.Equal(t, model.StatePartial, f.State())
	assert.Equal(t, now.Add(DefaultGracePeriod), f.Deadline())
}

func TestFlowSynKeepsDeadline(t *testing.T) {
	f := NewFlow(DefaultPolicy())

	require.NoError(t, f.AddPacket(tcpPacket(base, 0, nil, ""), base))
	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagSyn, nil, ""), base.Add(30*time.Second)))

	assert.Equal(t, base.Add(DefaultIdleTimeout), f.Deadline())
	assert.False(t, f.Ready(base.Add(59*time.Second)))
	assert.True(t, f.Ready(base.Add(60*time.Second)))
}

func TestFlowCombinedFlagsFollowPrecedence(t *testing.T) {
	f := NewFlow(DefaultPolicy())

	// syn wins over fin.
	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagSyn|model.FlagFin, nil, ""), base))
	assert.Equal(t, model.StatePartialSyn, f.State())
	assert.Equal(t, base.Add(DefaultIdleTimeout), f.Deadline())

	// fin wins over syn_ack, so the direction is not touched.
	require.NoError(t, f.AddPacket(tcpPacket(base, model.FlagSynAck|model.FlagFin, nil, ""), base))
	assert.Equal(t, model.StateComplete, f.State())
	assert.Equal(t, model.CTS, f.Direction())
}

func TestFlowRejectsForeignPacket(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	require.NoError(t, f.AddPacket(tcpPacket(base, 0, u32(1), "a"), base))
	deadline := f.Deadline()

	reply := tcpBetween(base.Add(time.Second), "93.184.216.34", "10.0.0.1", 80, 50000, model.FlagRst, nil, "b")
	err := f.AddPacket(reply, base.Add(time.Second))

	require.ErrorIs(t, err, ErrKeyMismatch)
	assert.Len(t, f.Packets(), 1)
	assert.Equal(t, deadline, f.Deadline())
	assert.Equal(t, base, f.End())
	assert.Equal(t, model.StatePartial, f.State())
}

func TestFlowRejectsNilPacket(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	assert.ErrorIs(t, f.AddPacket(nil, base), ErrNilPacket)
}

func TestFlowTracksStartAndEnd(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	for _, offset := range []time.Duration{2, 0, 5, 1} {
		require.NoError(t, f.AddPacket(tcpPacket(base.Add(offset*time.Second), 0, nil, ""), base))
	}
	assert.Equal(t, base, f.Start())
	assert.Equal(t, base.Add(5*time.Second), f.End())
	assert.False(t, f.Start().After(f.End()))
}

func TestFlowNonTCPIsReadyImmediately(t *testing.T) {
	icmp := &model.PacketRecord{
		Timestamp: base,
		Network:   &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("10.0.0.2")},
		Transport: &model.TransportLayer{Type: model.TransportICMP},
	}
	ipOnly := &model.PacketRecord{
		Timestamp: base,
		Network:   &model.NetworkLayer{Type: model.NetworkIPv6, Src: net.ParseIP("fe80::1"), Dst: net.ParseIP("ff02::1")},
	}

	tests := []struct {
		name     string
		packet   *model.PacketRecord
		protocol string
	}{
		{"udp", udpPacket(base, 40000, "q"), model.TransportUDP},
		{"icmp", icmp, model.TransportICMP},
		{"network only", ipOnly, model.NetworkIPv6},
		{"no layers", arpPacket(base), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFlow(DefaultPolicy())
			require.NoError(t, f.AddPacket(tt.packet, base))
			assert.Equal(t, tt.protocol, f.Protocol())
			assert.Equal(t, model.StatePartial, f.State())
			assert.True(t, f.Ready(base))
		})
	}
}

func TestFlowRetainUDP(t *testing.T) {
	policy := DefaultPolicy()
	policy.RetainUDP = true
	f := NewFlow(policy)

	require.NoError(t, f.AddPacket(udpPacket(base, 40000, "q"), base))
	assert.False(t, f.Ready(base))
	assert.True(t, f.Ready(base.Add(DefaultIdleTimeout)))
}

func TestFinalizeOrdersTCPPayloadBySeq(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	packets := []*model.PacketRecord{
		tcpPacket(base, 0, u32(200), "c"),
		tcpPacket(base, 0, u32(100), "a"),
		tcpPacket(base, 0, nil, "0"),
		tcpPacket(base, 0, u32(100), "b"),
	}
	for _, p := range packets {
		require.NoError(t, f.AddPacket(p, base))
	}

	rec := f.Finalize(model.EndReasonFlush)

	assert.Equal(t, "0abc", string(rec.Payload))
	require.Len(t, rec.Packets, 4)
	assert.Same(t, packets[2], rec.Packets[0])
	assert.Same(t, packets[1], rec.Packets[1])
	assert.Same(t, packets[3], rec.Packets[2])
	assert.Same(t, packets[0], rec.Packets[3])
	assert.Equal(t, model.EndReasonFlush, rec.EndReason)
	assert.Equal(t, model.TransportTCP, rec.Protocol)
}

func TestFinalizeKeepsArrivalOrderForUDP(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	for i, data := range []string{"x", "y", "z"} {
		p := udpPacket(base, 40000, data)
		p.Transport.Seq = u32(uint32(10 - i))
		require.NoError(t, f.AddPacket(p, base))
	}

	rec := f.Finalize(model.EndReasonDeadline)
	assert.Equal(t, "xyz", string(rec.Payload))
}

func TestFinalizeKeepsDuplicates(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	p := tcpPacket(base, 0, u32(7), "dup")
	require.NoError(t, f.AddPacket(p, base))
	require.NoError(t, f.AddPacket(p, base))

	rec := f.Finalize(model.EndReasonFlush)
	assert.Len(t, rec.Packets, 2)
	assert.Equal(t, "dupdup", string(rec.Payload))
}

func TestFinalizeEmptyPayload(t *testing.T) {
	f := NewFlow(DefaultPolicy())
	require.NoError(t, f.AddPacket(arpPacket(base), base))

	rec := f.Finalize(model.EndReasonDeadline)
	assert.NotNil(t, rec.Payload)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, "(-, -, -, -, -)", rec.Key())
}
