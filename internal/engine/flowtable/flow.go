package flowtable

import (
	"cmp"
	"slices"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/direction"
	"FlowChains/internal/engine/flowkey"

	"github.com/pkg/errors"
)

const (
	// DefaultIdleTimeout is how long a flow lives after creation when no
	// control packet shortens it.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultGracePeriod is how long a flow lives after a FIN, FIN-ACK or RST.
	DefaultGracePeriod = 1 * time.Second
)

var (
	// ErrKeyMismatch is returned when a packet is added to a flow it does not belong to.
	ErrKeyMismatch = errors.New("flowtable: packet key does not match flow id")

	// ErrNilPacket is returned when a nil packet record is ingested.
	ErrNilPacket = errors.New("flowtable: nil packet record")
)

// Policy holds the timing and classification rules applied to every flow.
type Policy struct {
	IdleTimeout time.Duration
	GracePeriod time.Duration

	// RetainUDP keeps UDP flows until their idle deadline. When false UDP
	// flows are handed out on the next sweep, like every protocol other than TCP.
	RetainUDP bool

	Classifier *direction.Classifier
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		IdleTimeout: DefaultIdleTimeout,
		GracePeriod: DefaultGracePeriod,
		Classifier:  direction.NewClassifier(nil),
	}
}

func (p *Policy) retains(protocol string) bool {
	switch protocol {
	case model.TransportTCP:
		return true
	case model.TransportUDP:
		return p.RetainUDP
	default:
		return false
	}
}

// Flow accumulates the packets of one flow key and tracks its lifecycle.
// It is not safe for concurrent use.
type Flow struct {
	policy *Policy

	initialized bool
	key         model.FlowKey
	protocol    string
	direction   model.Direction
	packets     []*model.PacketRecord
	start       time.Time
	end         time.Time
	state       model.State
	deadline    time.Time
}

// NewFlow returns an empty flow governed by policy.
func NewFlow(policy Policy) *Flow {
	if policy.Classifier == nil {
		policy.Classifier = direction.NewClassifier(nil)
	}
	return &Flow{policy: &policy}
}

func newFlow(policy *Policy) *Flow {
	return &Flow{policy: policy}
}

// AddPacket appends p to the flow and applies the TCP control rules. now is
// the current time of the table clock, used for every deadline update.
// A packet whose key differs from the flow id is rejected with ErrKeyMismatch
// and leaves the flow untouched.
func (f *Flow) AddPacket(p *model.PacketRecord, now time.Time) error {
	if p == nil {
		return ErrNilPacket
	}
	key := flowkey.Derive(p)

	if !f.initialized {
		f.initialized = true
		f.key = key
		f.protocol = key.Protocol
		f.direction = f.policy.Classifier.Classify(p)
		f.start = p.Timestamp
		f.end = p.Timestamp
		f.state = model.StatePartial
		f.deadline = now.Add(f.policy.IdleTimeout)
	} else if key != f.key {
		return errors.Wrapf(ErrKeyMismatch, "flow %s, packet %s", f.key, key)
	}

	f.packets = append(f.packets, p)
	if p.Timestamp.Before(f.start) {
		f.start = p.Timestamp
	}
	if p.Timestamp.After(f.end) {
		f.end = p.Timestamp
	}

	if f.protocol == model.TransportTCP && p.Transport != nil {
		f.control(p.Transport.Flags, now)
	}

	if !f.policy.retains(f.protocol) {
		f.deadline = now
	}
	return nil
}

// control applies the first matching flag rule. The order is fixed:
// syn, fin, syn_ack, fin_ack, rst.
func (f *Flow) control(flags model.TCPFlags, now time.Time) {
	switch {
	case flags.Has(model.FlagSyn):
		f.setState(model.StatePartialSyn)
		f.direction = model.CTS
	case flags.Has(model.FlagFin):
		f.teardown(now)
	case flags.Has(model.FlagSynAck):
		f.setState(model.StatePartialSyn)
		f.direction = model.STC
	case flags.Has(model.FlagFinAck):
		f.teardown(now)
	case flags.Has(model.FlagRst):
		f.setState(model.StatePartial)
		f.deadline = now.Add(f.policy.GracePeriod)
	}
}

func (f *Flow) teardown(now time.Time) {
	if f.state == model.StatePartialSyn {
		f.setState(model.StateComplete)
	}
	f.deadline = now.Add(f.policy.GracePeriod)
}

// setState never leaves StateComplete.
func (f *Flow) setState(s model.State) {
	if f.state == model.StateComplete {
		return
	}
	f.state = s
}

// Ready reports whether the deadline has passed at now. A complete flow
// still waits out its grace period so the rest of the teardown joins it.
func (f *Flow) Ready(now time.Time) bool {
	return !f.deadline.After(now)
}

// Key returns the flow id set by the first packet.
func (f *Flow) Key() model.FlowKey { return f.key }

// Protocol returns the transport type, or the network type when the first
// packet had no transport.
func (f *Flow) Protocol() string { return f.protocol }

// Direction returns the current direction estimate.
func (f *Flow) Direction() model.Direction { return f.direction }

// State returns the lifecycle state.
func (f *Flow) State() model.State { return f.state }

// Deadline returns the time at which the flow becomes ready.
func (f *Flow) Deadline() time.Time { return f.deadline }

// Start returns the earliest packet timestamp.
func (f *Flow) Start() time.Time { return f.start }

// End returns the latest packet timestamp.
func (f *Flow) End() time.Time { return f.end }

// Packets returns the packets in arrival order. The slice is owned by the flow.
func (f *Flow) Packets() []*model.PacketRecord { return f.packets }

// Finalize orders the packets, joins their payload and returns the record.
// TCP packets are sorted by sequence number, stable on arrival order, with a
// missing sequence number sorting as zero. Every other protocol keeps arrival
// order. The flow must not be used afterwards.
func (f *Flow) Finalize(reason model.EndReason) *model.FlowRecord {
	packets := f.packets
	if f.protocol == model.TransportTCP {
		slices.SortStableFunc(packets, func(a, b *model.PacketRecord) int {
			return cmp.Compare(seqOf(a), seqOf(b))
		})
	}

	size := 0
	for _, p := range packets {
		if p.Transport != nil {
			size += len(p.Transport.Data)
		}
	}
	payload := make([]byte, 0, size)
	for _, p := range packets {
		if p.Transport != nil {
			payload = append(payload, p.Transport.Data...)
		}
	}

	f.packets = nil
	return &model.FlowRecord{
		FlowID:    f.key,
		Protocol:  f.protocol,
		Direction: f.direction,
		Packets:   packets,
		Payload:   payload,
		Start:     f.start,
		End:       f.end,
		State:     f.state,
		EndReason: reason,
	}
}

func seqOf(p *model.PacketRecord) uint32 {
	if p.Transport == nil || p.Transport.Seq == nil {
		return 0
	}
	return *p.Transport.Seq
}
