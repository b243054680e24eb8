// Package live captures packets from a network interface through libpcap.
package live

import (
	"context"
	"io"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/protocol"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// DefaultSnapLen captures whole Ethernet frames.
const DefaultSnapLen = 65536

// Options selects the interface and how it is captured.
type Options struct {
	Interface   string
	SnapLen     int32
	Promiscuous bool
	BPF         string

	// IdlePoll is how long a read may block before the source reports
	// pipeline.ErrIdle.
	IdlePoll time.Duration
}

// Source is a live packet record stream.
type Source struct {
	handle   *pcap.Handle
	linkType layers.LinkType
	logger   logging.Logger
}

// Open starts capturing on opts.Interface.
func Open(opts Options, logger logging.Logger) (*Source, error) {
	if opts.Interface == "" {
		return nil, errors.New("live: no interface given")
	}
	if opts.SnapLen <= 0 {
		opts.SnapLen = DefaultSnapLen
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = time.Second
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	handle, err := pcap.OpenLive(opts.Interface, opts.SnapLen, opts.Promiscuous, opts.IdlePoll)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open interface %s", opts.Interface)
	}
	if opts.BPF != "" {
		if err := handle.SetBPFFilter(opts.BPF); err != nil {
			handle.Close()
			return nil, errors.Wrapf(err, "invalid bpf filter %q", opts.BPF)
		}
	}

	logger.Info("capturing", logging.Fields{
		"interface":   opts.Interface,
		"snaplen":     opts.SnapLen,
		"promiscuous": opts.Promiscuous,
		"bpf":         opts.BPF,
	})
	return &Source{handle: handle, linkType: handle.LinkType(), logger: logger}, nil
}

// Next returns the next captured packet record. It returns pipeline.ErrIdle
// when nothing arrived within the idle poll window.
func (s *Source) Next(ctx context.Context) (*model.PacketRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, ci, err := s.handle.ReadPacketData()
		switch {
		case err == pcap.NextErrorTimeoutExpired:
			return nil, pipeline.ErrIdle
		case err == io.EOF || err == pcap.NextErrorNoMorePackets:
			return nil, io.EOF
		case err != nil:
			return nil, errors.Wrap(err, "failed to read from interface")
		}

		rec, err := protocol.ParsePacket(data, s.linkType, ci)
		if err != nil {
			s.logger.Debug("skipping undecodable frame", logging.Fields{"error": err.Error()})
			continue
		}
		return rec, nil
	}
}

// Stats returns the libpcap capture counters.
func (s *Source) Stats() (*pcap.Stats, error) {
	return s.handle.Stats()
}

// Close stops the capture.
func (s *Source) Close() error {
	s.handle.Close()
	return nil
}
