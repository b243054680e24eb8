package probe

import (
	"context"
	"io"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// DefaultBacklog is the number of undelivered messages buffered per subscriber.
const DefaultBacklog = 8192

// Subscriber receives packet records from a NATS subject. It implements
// pipeline.Stream and reports pipeline.ErrIdle when nothing arrives within
// the idle poll window.
type Subscriber struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	msgs     <-chan *nats.Msg
	idlePoll time.Duration
	logger   logging.Logger
	dropped  int
}

// NewSubscriber connects to url and subscribes to subject.
func NewSubscriber(url, subject string, idlePoll time.Duration, logger logging.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(url, nats.Name("chains-engine"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to nats at %s", url)
	}
	ch := make(chan *nats.Msg, DefaultBacklog)
	sub, err := nc.ChanSubscribe(subject, ch)
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "failed to subscribe to %s", subject)
	}
	logger.Info("subscribed", logging.Fields{"url": url, "subject": subject})

	s := newSubscriber(ch, idlePoll, logger)
	s.nc, s.sub = nc, sub
	return s, nil
}

func newSubscriber(msgs <-chan *nats.Msg, idlePoll time.Duration, logger logging.Logger) *Subscriber {
	if idlePoll <= 0 {
		idlePoll = time.Second
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Subscriber{msgs: msgs, idlePoll: idlePoll, logger: logger}
}

// Next returns the next packet record. Messages that fail to decode are
// logged and skipped. A closed subscription ends the stream.
func (s *Subscriber) Next(ctx context.Context) (*model.PacketRecord, error) {
	timer := time.NewTimer(s.idlePoll)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, pipeline.ErrIdle
		case msg, ok := <-s.msgs:
			if !ok {
				return nil, io.EOF
			}
			rec, err := DecodePacket(msg.Data)
			if err != nil {
				s.dropped++
				s.logger.Warn("dropping undecodable packet message", logging.Fields{"error": err.Error()})
				continue
			}
			return rec, nil
		}
	}
}

// Dropped returns how many messages could not be decoded.
func (s *Subscriber) Dropped() int { return s.dropped }

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", logging.Fields{"error": err.Error()})
		}
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
