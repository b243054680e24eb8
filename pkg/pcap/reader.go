// Package pcap reads capture files as packet record streams.
package pcap

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"

	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/protocol"
	"FlowChains/internal/logging"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

const pcapngMagic = 0x0A0D0D0A

// ErrUnknownFormat is returned for files that are neither pcap nor pcapng.
var ErrUnknownFormat = errors.New("pcap: unknown capture file format")

type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads packets from a pcap or pcapng file and decodes them into
// packet records. It implements pipeline.Stream.
type Reader struct {
	file     *os.File
	source   packetDataSource
	linkType layers.LinkType
	logger   logging.Logger

	maxPackets int
	read       int
	skipped    int
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxPackets stops the stream after n packets. n <= 0 means no limit.
func WithMaxPackets(n int) Option {
	return func(r *Reader) { r.maxPackets = n }
}

// WithLogger sets the logger used to report skipped frames.
func WithLogger(l logging.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReader opens the capture at filePath. The format is detected from the
// file's magic number.
func NewReader(filePath string, opts ...Option) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open capture %s", filePath)
	}
	r, err := newReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to read capture %s", filePath)
	}
	r.file = f
	return r, nil
}

// NewStreamReader reads a capture from an arbitrary byte stream.
func NewStreamReader(in io.Reader, opts ...Option) (*Reader, error) {
	return newReader(in, opts...)
}

func newReader(in io.Reader, opts ...Option) (*Reader, error) {
	buf := bufio.NewReader(in)
	magic, err := buf.Peek(4)
	if err != nil {
		return nil, errors.Wrap(ErrUnknownFormat, err.Error())
	}

	r := &Reader{logger: logging.NewNullLogger()}
	for _, opt := range opts {
		opt(r)
	}

	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(buf, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, errors.Wrap(err, "invalid pcapng header")
		}
		r.source, r.linkType = ng, ng.LinkType()
		return r, nil
	}

	pr, err := pcapgo.NewReader(buf)
	if err != nil {
		return nil, errors.Wrap(ErrUnknownFormat, err.Error())
	}
	r.source, r.linkType = pr, pr.LinkType()
	return r, nil
}

// LinkType returns the link type of the capture.
func (r *Reader) LinkType() layers.LinkType { return r.linkType }

// Read returns the number of packet records delivered so far.
func (r *Reader) Read() int { return r.read }

// Skipped returns the number of frames that could not be decoded.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next decoded packet record, or io.EOF at the end of the
// capture or once the packet limit is reached.
func (r *Reader) Next(ctx context.Context) (*model.PacketRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.maxPackets > 0 && r.read >= r.maxPackets {
			return nil, io.EOF
		}

		data, ci, err := r.source.ReadPacketData()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read packet data")
		}

		rec, err := protocol.ParsePacket(data, r.linkType, ci)
		if err != nil {
			r.skipped++
			r.logger.Debug("skipping undecodable frame", logging.Fields{
				"error":     err.Error(),
				"timestamp": ci.Timestamp,
			})
			continue
		}
		r.read++
		return rec, nil
	}
}

// Close closes the underlying file, if the reader opened one.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
