package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FlowChains/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pkg/errors"
)

// DefaultLimit caps the number of flows returned by TraceFlows.
const DefaultLimit = 100

// ProtocolSummary holds the totals of one protocol.
type ProtocolSummary struct {
	Protocol string `json:"protocol"`
	Flows    uint64 `json:"flows"`
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
}

// FlowRow is one stored flow.
type FlowRow struct {
	FlowKey   string    `json:"flow_key"`
	Direction string    `json:"direction"`
	State     string    `json:"state"`
	EndReason string    `json:"end_reason"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Packets   uint64    `json:"packets"`
	Bytes     uint64    `json:"bytes"`
}

// TraceRequest selects stored flows. Keys maps column names (SrcIP, DstIP,
// SrcPort, DstPort, Protocol) to the value they must equal.
type TraceRequest struct {
	Keys  map[string]string
	From  time.Time
	To    time.Time
	Limit int
}

// Querier defines the interface for querying stored flows.
type Querier interface {
	Summary(ctx context.Context, from, to time.Time) ([]ProtocolSummary, error)
	TraceFlows(ctx context.Context, req TraceRequest) ([]FlowRow, error)
	Close() error
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// Summary returns per protocol totals of the flows that started in [from, to].
// A zero bound is open.
func (q *clickhouseQuerier) Summary(ctx context.Context, from, to time.Time) ([]ProtocolSummary, error) {
	query, args := buildSummaryQuery(from, to)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var out []ProtocolSummary
	for rows.Next() {
		var s ProtocolSummary
		if err := rows.Scan(&s.Protocol, &s.Flows, &s.Packets, &s.Bytes); err != nil {
			return nil, errors.Wrap(err, "failed to scan summary row")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TraceFlows returns the stored flows matching req, most recent first.
func (q *clickhouseQuerier) TraceFlows(ctx context.Context, req TraceRequest) ([]FlowRow, error) {
	query, args, err := buildTraceQuery(req)
	if err != nil {
		return nil, err
	}
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var out []FlowRow
	for rows.Next() {
		var r FlowRow
		if err := rows.Scan(&r.FlowKey, &r.Direction, &r.State, &r.EndReason, &r.StartTime, &r.EndTime, &r.Packets, &r.Bytes); err != nil {
			return nil, errors.Wrap(err, "failed to scan flow row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}

func timeBounds(from, to time.Time) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if !from.IsZero() {
		where = append(where, "StartTime >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		where = append(where, "StartTime <= ?")
		args = append(args, to)
	}
	return where, args
}

func buildSummaryQuery(from, to time.Time) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT Protocol, count() AS Flows, sum(PacketCount) AS Packets, sum(ByteCount) AS Bytes FROM flow_records")
	where, args := timeBounds(from, to)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" GROUP BY Protocol ORDER BY Protocol")
	return b.String(), args
}

func buildTraceQuery(req TraceRequest) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString("SELECT FlowKey, Direction, State, EndReason, StartTime, EndTime, PacketCount, ByteCount FROM flow_records")

	where, args := timeBounds(req.From, req.To)
	for _, key := range []string{"SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol"} {
		if v, ok := req.Keys[key]; ok {
			where = append(where, key+" = ?")
			args = append(args, v)
		}
	}
	for key := range req.Keys {
		switch key {
		case "SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol":
		default:
			return "", nil, errors.Errorf("unsupported flow key: %s, only SrcIP, DstIP, SrcPort, DstPort, Protocol are allowed", key)
		}
	}

	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	fmt.Fprintf(&b, " ORDER BY StartTime DESC LIMIT %d", limit)
	return b.String(), args, nil
}
