package probe

import (
	"context"

	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Conn is the part of a NATS connection the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher is responsible for publishing packet records to a NATS subject.
type Publisher struct {
	nc        Conn
	subject   string
	logger    logging.Logger
	published int
}

// NewPublisher connects to the NATS server at url.
func NewPublisher(url, subject string, logger logging.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("chains-probe"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to nats at %s", url)
	}
	logger.Info("connected to nats", logging.Fields{"url": url, "subject": subject})
	return NewPublisherWithConn(nc, subject, logger), nil
}

// NewPublisherWithConn publishes over an existing connection.
func NewPublisherWithConn(nc Conn, subject string, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Publisher{nc: nc, subject: subject, logger: logger}
}

// Publish serializes a packet record and publishes it.
func (p *Publisher) Publish(rec *model.PacketRecord) error {
	data, err := EncodePacket(rec)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return errors.Wrap(err, "failed to publish packet")
	}
	p.published++
	return nil
}

// Run publishes every record of in until it is exhausted or ctx is done.
func (p *Publisher) Run(ctx context.Context, in pipeline.Stream[*model.PacketRecord]) error {
	err := pipeline.Pull(ctx, in, p.Publish)
	p.logger.Info("probe stopped", logging.Fields{"published": p.published})
	return err
}

// Published returns how many records were sent.
func (p *Publisher) Published() int { return p.published }

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
