package writer

import (
	"context"
	"fmt"
	"sync"

	"FlowChains/internal/config"
	"FlowChains/internal/core/model"
	"FlowChains/internal/logging"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
)

// DefaultBatchSize is how many flows are buffered before an insert.
const DefaultBatchSize = 1000

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
    FlowKey     String,
    SrcIP       Nullable(String),
    DstIP       Nullable(String),
    SrcPort     Nullable(UInt16),
    DstPort     Nullable(UInt16),
    Protocol    String,
    Direction   LowCardinality(String),
    State       LowCardinality(String),
    EndReason   LowCardinality(String),
    StartTime   DateTime64(6),
    EndTime     DateTime64(6),
    PacketCount UInt64,
    ByteCount   UInt64,
    Tags        Array(String),
    DNSNames    Array(String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (StartTime, FlowKey);
`

const insertStatement = "INSERT INTO flow_records"

// BatchConn is the part of a ClickHouse connection the writer needs.
type BatchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// ClickHouseWriter buffers flows and inserts them into flow_records in batches.
type ClickHouseWriter struct {
	mu        sync.Mutex
	conn      BatchConn
	batchSize int
	pending   [][]interface{}
	logger    logging.Logger
}

// NewClickHouseWriter connects, ensures the table exists and returns the writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, logger logging.Logger) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to create table")
	}
	logger.Info("connected to clickhouse", logging.Fields{"host": cfg.Host, "database": cfg.Database})

	return NewClickHouseWriterWithConn(conn, cfg.BatchSize, logger), nil
}

// NewClickHouseWriterWithConn uses an existing connection.
func NewClickHouseWriterWithConn(conn BatchConn, batchSize int, logger logging.Logger) *ClickHouseWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &ClickHouseWriter{conn: conn, batchSize: batchSize, logger: logger}
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to ping clickhouse")
	}
	return conn, nil
}

// Write buffers f and inserts the buffer once it is full.
func (w *ClickHouseWriter) Write(ctx context.Context, f *model.FlowRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, Row(f))
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.flush(ctx)
}

func (w *ClickHouseWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, insertStatement)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	for _, row := range w.pending {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return errors.Wrap(err, "failed to append flow to batch")
		}
	}
	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}
	w.logger.Debug("wrote flows to clickhouse", logging.Fields{"flows": len(w.pending)})
	w.pending = w.pending[:0]
	return nil
}

// Close inserts anything still buffered and closes the connection.
func (w *ClickHouseWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.flush(context.Background())
	if cerr := w.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Row maps f onto the flow_records columns.
func Row(f *model.FlowRecord) []interface{} {
	d := NewDocument(f)
	var names []string
	for _, msg := range f.DNS {
		for _, q := range msg.Questions {
			names = append(names, q.Name)
		}
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	if names == nil {
		names = []string{}
	}
	return []interface{}{
		d.Key,
		nullableString(d.Src),
		nullableString(d.Dst),
		d.SrcPort,
		d.DstPort,
		d.Protocol,
		d.Direction,
		d.State,
		d.EndReason,
		d.Start,
		d.End,
		uint64(d.Packets),
		uint64(d.Bytes),
		tags,
		names,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
