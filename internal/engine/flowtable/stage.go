package flowtable

import (
	"context"
	"io"

	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/pkg/errors"
)

// Recorder receives flow table events. The metrics package implements it.
type Recorder interface {
	PacketIngested()
	FlowCreated()
	FlowEmitted(reason model.EndReason, packets int)
	ActiveFlows(n int)
	IngestFailed()
}

type nopRecorder struct{}

func (nopRecorder) PacketIngested()                  {}
func (nopRecorder) FlowCreated()                     {}
func (nopRecorder) FlowEmitted(model.EndReason, int) {}
func (nopRecorder) ActiveFlows(int)                  {}
func (nopRecorder) IngestFailed()                    {}

// Stage turns a packet stream into a flow stream. After every packet it
// sweeps the table for ready flows, and once the input is exhausted it emits
// every remaining flow in start order before reporting io.EOF.
type Stage struct {
	input    pipeline.Stream[*model.PacketRecord]
	table    *Table
	observer Observer
	logger   logging.Logger
	recorder Recorder

	pending []*model.FlowRecord
	done    bool
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) StageOption {
	return func(s *Stage) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewStage builds the flow stage over input. When the table clock follows
// packet timestamps it is advanced before each packet is ingested.
func NewStage(input pipeline.Stream[*model.PacketRecord], table *Table, logger logging.Logger, opts ...StageOption) (*Stage, error) {
	if input == nil || table == nil {
		return nil, pipeline.ErrNilInput
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	s := &Stage{
		input:    input,
		table:    table,
		logger:   logger,
		recorder: nopRecorder{},
	}
	if o, ok := table.Clock().(Observer); ok {
		s.observer = o
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the next finished flow. It returns pipeline.ErrIdle when the
// input is idle and no flow became ready, and io.EOF after the final flush.
func (s *Stage) Next(ctx context.Context) (*model.FlowRecord, error) {
	for {
		if len(s.pending) > 0 {
			f := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			s.emitted(f)
			return f, nil
		}
		if s.done {
			return nil, io.EOF
		}

		p, err := s.input.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			s.done = true
			s.pending = s.table.DrainAll()
			s.logger.Debug("input exhausted, flushing flows", logging.Fields{
				"flows": len(s.pending),
			})
			continue
		case errors.Is(err, pipeline.ErrIdle):
			s.pending = s.table.DrainReady(s.table.Now())
			if len(s.pending) == 0 {
				return nil, pipeline.ErrIdle
			}
			continue
		case err != nil:
			return nil, err
		}

		s.ingest(p)
		s.pending = s.table.DrainReady(s.table.Now())
	}
}

func (s *Stage) ingest(p *model.PacketRecord) {
	if s.observer != nil && p != nil {
		s.observer.Observe(p.Timestamp)
	}
	before := s.table.Len()
	if err := s.table.Ingest(p); err != nil {
		s.recorder.IngestFailed()
		s.logger.Error(errors.Wrap(err, "could not ingest packet"), nil)
		return
	}
	s.recorder.PacketIngested()
	if s.table.Len() > before {
		s.recorder.FlowCreated()
	}
	s.recorder.ActiveFlows(s.table.Len())
}

func (s *Stage) emitted(f *model.FlowRecord) {
	s.recorder.FlowEmitted(f.EndReason, len(f.Packets))
	s.recorder.ActiveFlows(s.table.Len())
	s.logger.Debug("flow emitted", logging.Fields{
		"flow":    f.Key(),
		"state":   f.State.String(),
		"reason":  f.EndReason.String(),
		"packets": len(f.Packets),
	})
}
