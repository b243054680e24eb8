package writer

import (
	"context"

	"FlowChains/internal/core/model"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultFlowSubject is the subject flows are published on when none is configured.
const DefaultFlowSubject = "chains.flows"

// Publisher is the part of a NATS connection the writer needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSWriter publishes each flow as a protobuf Struct.
type NATSWriter struct {
	conn    Publisher
	subject string
}

// NewNATSWriter connects to url and publishes on subject.
func NewNATSWriter(url, subject string) (*NATSWriter, error) {
	nc, err := nats.Connect(url, nats.Name("chains-flow-writer"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to nats")
	}
	return NewNATSWriterWithConn(nc, subject), nil
}

// NewNATSWriterWithConn publishes over an existing connection.
func NewNATSWriterWithConn(conn Publisher, subject string) *NATSWriter {
	if subject == "" {
		subject = DefaultFlowSubject
	}
	return &NATSWriter{conn: conn, subject: subject}
}

// Write publishes f.
func (w *NATSWriter) Write(_ context.Context, f *model.FlowRecord) error {
	data, err := EncodeFlow(f)
	if err != nil {
		return err
	}
	return errors.Wrap(w.conn.Publish(w.subject, data), "failed to publish flow")
}

// Close drains the connection.
func (w *NATSWriter) Close() error {
	return w.conn.Drain()
}

// EncodeFlow marshals f as a protobuf Struct built from its Document.
func EncodeFlow(f *model.FlowRecord) ([]byte, error) {
	s, err := structpb.NewStruct(NewDocument(f).Map())
	if err != nil {
		return nil, errors.Wrap(err, "failed to build flow struct")
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal flow")
	}
	return data, nil
}

// DecodeFlow unmarshals a message produced by EncodeFlow.
func DecodeFlow(data []byte) (map[string]interface{}, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal flow")
	}
	return s.AsMap(), nil
}
