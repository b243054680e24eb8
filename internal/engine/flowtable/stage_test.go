package flowtable

import (
	"context"
	"io"
	"testing"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	ingested, created, failed int
	emitted                   map[model.EndReason]int
	emittedPackets            int
	active                    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{emitted: map[model.EndReason]int{}}
}

func (r *countingRecorder) PacketIngested() { r.ingested++ }
func (r *countingRecorder) FlowCreated()    { r.created++ }
func (r *countingRecorder) IngestFailed()   { r.failed++ }
func (r *countingRecorder) ActiveFlows(n int) {
	r.active = n
}
func (r *countingRecorder) FlowEmitted(reason model.EndReason, packets int) {
	r.emitted[reason]++
	r.emittedPackets += packets
}

// step is one scripted answer of a test source.
type step struct {
	packet *model.PacketRecord
	err    error
}

func scripted(steps ...step) pipeline.Stream[*model.PacketRecord] {
	i := 0
	return pipeline.StreamFunc[*model.PacketRecord](func(ctx context.Context) (*model.PacketRecord, error) {
		if i >= len(steps) {
			return nil, io.EOF
		}
		s := steps[i]
		i++
		return s.packet, s.err
	})
}

func TestStageEmitsEveryPacketOnce(t *testing.T) {
	packets := []*model.PacketRecord{
		tcpPacket(base, model.FlagSyn, u32(1), ""),
		udpPacket(base.Add(time.Second), 40000, "q"),
		tcpPacket(base.Add(2*time.Second), 0, u32(2), "payload"),
		tcpBetween(base.Add(3*time.Second), "10.0.0.3", "10.0.0.4", 51000, 22, 0, nil, ""),
	}
	table := NewTable(DefaultPolicy(), NewPacketClock())
	stage, err := NewStage(pipeline.FromSlice(packets), table, logging.NewTestLogger(t))
	require.NoError(t, err)

	flows, err := pipeline.Collect(context.Background(), stage)
	require.NoError(t, err)

	require.Len(t, flows, 3)
	assert.Equal(t, model.TransportUDP, flows[0].Protocol)
	assert.Equal(t, model.EndReasonDeadline, flows[0].EndReason)
	assert.Equal(t, base, flows[1].Start)
	assert.Equal(t, model.StatePartialSyn, flows[1].State)
	assert.Equal(t, model.EndReasonFlush, flows[1].EndReason)
	assert.Equal(t, "payload", string(flows[1].Payload))
	assert.Equal(t, base.Add(3*time.Second), flows[2].Start)
	assert.Equal(t, len(packets), totalPackets(flows))

	_, err = stage.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStagePacketClockExpiresIdleFlows(t *testing.T) {
	packets := []*model.PacketRecord{
		tcpPacket(base, 0, u32(1), "a"),
		udpPacket(base.Add(DefaultIdleTimeout+time.Second), 40000, "late"),
	}
	table := NewTable(DefaultPolicy(), NewPacketClock())
	stage, err := NewStage(pipeline.FromSlice(packets), table, logging.NewTestLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	first, err := stage.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TransportTCP, first.Protocol)
	assert.Equal(t, model.EndReasonDeadline, first.EndReason)

	second, err := stage.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TransportUDP, second.Protocol)
	assert.Zero(t, table.Len())
}

func TestStageSweepsWhileIdle(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(base)
	table := NewTable(DefaultPolicy(), mock)
	input := scripted(
		step{packet: tcpPacket(base, 0, u32(1), "a")},
		step{err: pipeline.ErrIdle},
		step{err: pipeline.ErrIdle},
	)
	stage, err := NewStage(input, table, logging.NewTestLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = stage.Next(ctx)
	require.ErrorIs(t, err, pipeline.ErrIdle)

	mock.Add(DefaultIdleTimeout)
	f, err := stage.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EndReasonDeadline, f.EndReason)

	_, err = stage.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStageReportsEvents(t *testing.T) {
	rec := newCountingRecorder()
	mock := clock.NewMock()
	mock.Set(base)
	input := scripted(
		step{packet: tcpPacket(base, model.FlagSyn, u32(1), "")},
		step{packet: nil},
		step{packet: tcpPacket(base, model.FlagFin, u32(2), "")},
		step{packet: udpPacket(base, 40000, "q")},
		step{packet: tcpBetween(base, "10.0.0.3", "10.0.0.4", 51000, 22, 0, nil, "")},
	)
	stage, err := NewStage(input, NewTable(DefaultPolicy(), mock), logging.NewNullLogger(), WithRecorder(rec))
	require.NoError(t, err)

	flows, err := pipeline.Collect(context.Background(), stage)
	require.NoError(t, err)

	assert.Len(t, flows, 3)
	assert.Equal(t, 4, rec.ingested)
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, 3, rec.created)
	assert.Equal(t, 4, rec.emittedPackets)
	assert.Equal(t, 1, rec.emitted[model.EndReasonComplete])
	assert.Equal(t, 1, rec.emitted[model.EndReasonDeadline])
	assert.Equal(t, 1, rec.emitted[model.EndReasonFlush])
	assert.Zero(t, rec.active)
}

func TestStagePropagatesSourceErrors(t *testing.T) {
	boom := assert.AnError
	stage, err := NewStage(scripted(step{err: boom}), NewTable(DefaultPolicy(), nil), logging.NewTestLogger(t))
	require.NoError(t, err)

	_, err = stage.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewStageRequiresInput(t *testing.T) {
	_, err := NewStage(nil, NewTable(DefaultPolicy(), nil), nil)
	assert.ErrorIs(t, err, pipeline.ErrNilInput)
}

func TestPacketClockOnlyMovesForward(t *testing.T) {
	c := NewPacketClock()
	c.Observe(base.Add(time.Minute))
	assert.Equal(t, base.Add(time.Minute), c.Now())

	c.Observe(base)
	assert.Equal(t, base.Add(time.Minute), c.Now())

	c.Observe(time.Time{})
	assert.Equal(t, base.Add(time.Minute), c.Now())
}

func TestNewClock(t *testing.T) {
	_, ok := NewClock("packet").(*PacketClock)
	assert.True(t, ok)
	_, ok = NewClock("wall").(*PacketClock)
	assert.False(t, ok)
}
