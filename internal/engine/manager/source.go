package manager

import (
	"context"
	"io"

	"FlowChains/internal/config"
	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"
	"FlowChains/internal/probe"
	"FlowChains/pkg/pcap"
	"FlowChains/pkg/pcap/live"

	"github.com/pkg/errors"
)

// Source is a closable packet record stream.
type Source interface {
	pipeline.Stream[*model.PacketRecord]
	Close() error
}

type limitedSource struct {
	pipeline.Stream[*model.PacketRecord]
	closer interface{ Close() error }
}

func (s limitedSource) Close() error { return s.closer.Close() }

// OpenSource opens the packet source named by cfg.Source.Type. path
// overrides cfg.Source.Path for offline captures.
func OpenSource(cfg *config.Config, path string, logger logging.Logger) (Source, error) {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	sc := cfg.Source
	if path == "" {
		path = sc.Path
	}

	switch sc.Type {
	case "", "pcap":
		if path == "" {
			return nil, errors.New("no capture file given")
		}
		r, err := pcap.NewReader(path, pcap.WithMaxPackets(sc.MaxPackets), pcap.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return r, nil
	case "live":
		src, err := live.Open(live.Options{
			Interface:   sc.Interface,
			SnapLen:     sc.SnapLen,
			Promiscuous: sc.Promiscuous,
			BPF:         sc.BPF,
			IdlePoll:    sc.IdlePollDuration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return limit(src, sc.MaxPackets)
	case "nats":
		sub, err := probe.NewSubscriber(cfg.NATS.URL, cfg.NATS.PacketSubject, sc.IdlePollDuration(), logger)
		if err != nil {
			return nil, err
		}
		return limit(sub, sc.MaxPackets)
	default:
		return nil, errors.Errorf("unknown source type %q", sc.Type)
	}
}

func limit(src Source, n int) (Source, error) {
	if n <= 0 {
		return src, nil
	}
	s, err := pipeline.Limit[*model.PacketRecord](src, n)
	if err != nil {
		return nil, err
	}
	return limitedSource{Stream: s, closer: src}, nil
}

type untilDone struct {
	Source
	stop context.Context
}

// UntilDone ends src with io.EOF once stop is done, so the flow stage still
// flushes every held flow. Sources that block forever never notice stop;
// live and NATS sources return pipeline.ErrIdle often enough.
func UntilDone(stop context.Context, src Source) Source {
	return untilDone{Source: src, stop: stop}
}

func (s untilDone) Next(ctx context.Context) (*model.PacketRecord, error) {
	if s.stop.Err() != nil {
		return nil, io.EOF
	}
	return s.Source.Next(ctx)
}
