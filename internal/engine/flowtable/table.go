package flowtable

import (
	"slices"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/flowkey"

	"github.com/benbjohnson/clock"
)

// Table groups packets into flows and decides when each flow is handed out.
// Live flows are kept in creation order so that sweeps are deterministic.
// A Table is owned by a single stage and is not safe for concurrent use.
type Table struct {
	policy Policy
	clock  clock.Clock
	flows  map[model.FlowKey]*Flow
	order  []model.FlowKey
}

// NewTable creates an empty table. A nil clock falls back to the wall clock.
func NewTable(policy Policy, clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.New()
	}
	defaults := DefaultPolicy()
	if policy.IdleTimeout <= 0 {
		policy.IdleTimeout = defaults.IdleTimeout
	}
	if policy.GracePeriod <= 0 {
		policy.GracePeriod = defaults.GracePeriod
	}
	if policy.Classifier == nil {
		policy.Classifier = defaults.Classifier
	}
	return &Table{
		policy: policy,
		clock:  clk,
		flows:  make(map[model.FlowKey]*Flow),
	}
}

// Clock returns the clock deadlines are measured against.
func (t *Table) Clock() clock.Clock { return t.clock }

// Now is a shorthand for t.Clock().Now().
func (t *Table) Now() time.Time { return t.clock.Now() }

// Len returns the number of live flows.
func (t *Table) Len() int { return len(t.flows) }

// Lookup returns the live flow for key, if any.
func (t *Table) Lookup(key model.FlowKey) (*Flow, bool) {
	f, ok := t.flows[key]
	return f, ok
}

// Ingest routes p to the flow for its key, creating the flow when needed.
func (t *Table) Ingest(p *model.PacketRecord) error {
	if p == nil {
		return ErrNilPacket
	}
	now := t.clock.Now()

	key := flowkey.Derive(p)
	f, ok := t.flows[key]
	if !ok {
		f = newFlow(&t.policy)
		t.flows[key] = f
		t.order = append(t.order, key)
	}
	return f.AddPacket(p, now)
}

// DrainReady removes and returns every flow that is complete or whose
// deadline is not after now, in the order the flows were created.
func (t *Table) DrainReady(now time.Time) []*model.FlowRecord {
	var out []*model.FlowRecord
	kept := t.order[:0]
	for _, key := range t.order {
		f := t.flows[key]
		if !f.Ready(now) {
			kept = append(kept, key)
			continue
		}
		reason := model.EndReasonDeadline
		if f.State() == model.StateComplete {
			reason = model.EndReasonComplete
		}
		delete(t.flows, key)
		out = append(out, f.Finalize(reason))
	}
	clear(t.order[len(kept):])
	t.order = kept
	return out
}

// DrainAll removes and returns every live flow sorted by start time. Flows
// with equal start times keep their creation order.
func (t *Table) DrainAll() []*model.FlowRecord {
	live := make([]*Flow, 0, len(t.order))
	for _, key := range t.order {
		live = append(live, t.flows[key])
	}
	slices.SortStableFunc(live, func(a, b *Flow) int {
		return a.Start().Compare(b.Start())
	})

	out := make([]*model.FlowRecord, 0, len(live))
	for _, f := range live {
		reason := model.EndReasonFlush
		if f.State() == model.StateComplete {
			reason = model.EndReasonComplete
		}
		out = append(out, f.Finalize(reason))
	}
	t.flows = make(map[model.FlowKey]*Flow)
	t.order = nil
	return out
}
