package probe

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

func tcpRecord() *model.PacketRecord {
	seq := uint32(4000000000)
	return &model.PacketRecord{
		Timestamp: ts,
		Network: &model.NetworkLayer{
			Type: model.NetworkIPv4, Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("93.184.216.34"),
			Length: 60, TTL: 64,
		},
		Transport: &model.TransportLayer{
			Type: model.TransportTCP, SrcPort: model.PortOf(50000), DstPort: model.PortOf(443),
			Seq: &seq, Flags: model.FlagSynAck, Data: []byte{0, 1, 2, 255},
		},
	}
}

func TestCodecPreservesRecords(t *testing.T) {
	icmp := &model.PacketRecord{
		Timestamp: ts,
		Network:   &model.NetworkLayer{Type: model.NetworkIPv6, Src: net.ParseIP("fe80::1"), Dst: net.ParseIP("ff02::1")},
		Transport: &model.TransportLayer{Type: model.TransportICMP6, Data: []byte("ping")},
	}
	arp := &model.PacketRecord{Timestamp: ts}

	for _, rec := range []*model.PacketRecord{tcpRecord(), icmp, arp} {
		data, err := EncodePacket(rec)
		require.NoError(t, err)
		got, err := DecodePacket(data)
		require.NoError(t, err)

		assert.True(t, rec.Timestamp.Equal(got.Timestamp))
		if rec.Network == nil {
			assert.Nil(t, got.Network)
		} else {
			require.NotNil(t, got.Network)
			assert.Equal(t, rec.Network.Type, got.Network.Type)
			assert.True(t, rec.Network.Src.Equal(got.Network.Src))
			assert.True(t, rec.Network.Dst.Equal(got.Network.Dst))
			assert.Equal(t, rec.Network.TTL, got.Network.TTL)
		}
		if rec.Transport == nil {
			assert.Nil(t, got.Transport)
			continue
		}
		require.NotNil(t, got.Transport)
		assert.Equal(t, rec.Transport.Type, got.Transport.Type)
		assert.Equal(t, rec.Transport.SrcPort, got.Transport.SrcPort)
		assert.Equal(t, rec.Transport.DstPort, got.Transport.DstPort)
		assert.Equal(t, rec.Transport.Seq, got.Transport.Seq)
		assert.Equal(t, rec.Transport.Flags, got.Transport.Flags)
		assert.Equal(t, rec.Transport.Data, got.Transport.Data)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodePacket([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

type fakeConn struct {
	subject  string
	messages [][]byte
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject = subject
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestPublisherRun(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisherWithConn(conn, "chains.packets", logging.NewTestLogger(t))
	in := pipeline.FromSlice([]*model.PacketRecord{tcpRecord(), tcpRecord()})

	require.NoError(t, p.Run(context.Background(), in))
	require.NoError(t, p.Close())

	assert.Equal(t, 2, p.Published())
	assert.Equal(t, "chains.packets", conn.subject)
	assert.Len(t, conn.messages, 2)
	assert.True(t, conn.drained)
}

func TestSubscriberStream(t *testing.T) {
	ch := make(chan *nats.Msg, 4)
	data, err := EncodePacket(tcpRecord())
	require.NoError(t, err)
	ch <- &nats.Msg{Data: []byte("not protobuf at all")}
	ch <- &nats.Msg{Data: data}

	s := newSubscriber(ch, 10*time.Millisecond, logging.NewTestLogger(t))
	ctx := context.Background()

	rec, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TransportTCP, rec.Transport.Type)
	assert.Equal(t, 1, s.Dropped())

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, pipeline.ErrIdle)

	close(ch)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = newSubscriber(make(chan *nats.Msg), time.Hour, nil).Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, s.Close())
}
