// Package writer implements the flow sinks: a text printer, a msgpack file
// writer, a NATS publisher and a ClickHouse table writer.
package writer

import (
	"time"

	"FlowChains/internal/core/model"
)

// Document is the flat, serializable form of a flow record shared by the
// file, NATS and ClickHouse sinks.
type Document struct {
	Key       string             `codec:"key" json:"key"`
	Src       string             `codec:"src" json:"src"`
	Dst       string             `codec:"dst" json:"dst"`
	SrcPort   *uint16            `codec:"src_port" json:"src_port"`
	DstPort   *uint16            `codec:"dst_port" json:"dst_port"`
	Protocol  string             `codec:"protocol" json:"protocol"`
	Direction string             `codec:"direction" json:"direction"`
	State     string             `codec:"state" json:"state"`
	EndReason string             `codec:"end_reason" json:"end_reason"`
	Start     time.Time          `codec:"start" json:"start"`
	End       time.Time          `codec:"end" json:"end"`
	Packets   int                `codec:"packets" json:"packets"`
	Bytes     int                `codec:"bytes" json:"bytes"`
	Payload   []byte             `codec:"payload" json:"payload"`
	Tags      []string           `codec:"tags" json:"tags"`
	DNS       []model.DNSMessage `codec:"dns" json:"dns"`
	HTTP      *model.HTTPMessage `codec:"http" json:"http"`
	TLS       *model.TLSSummary  `codec:"tls" json:"tls"`
}

// NewDocument flattens f.
func NewDocument(f *model.FlowRecord) Document {
	return Document{
		Key:       f.Key(),
		Src:       f.FlowID.Src,
		Dst:       f.FlowID.Dst,
		SrcPort:   port(f.FlowID.SrcPort),
		DstPort:   port(f.FlowID.DstPort),
		Protocol:  f.Protocol,
		Direction: f.Direction.String(),
		State:     f.State.String(),
		EndReason: f.EndReason.String(),
		Start:     f.Start,
		End:       f.End,
		Packets:   len(f.Packets),
		Bytes:     f.Bytes(),
		Payload:   f.Payload,
		Tags:      f.Tags,
		DNS:       f.DNS,
		HTTP:      f.HTTP,
		TLS:       f.TLS,
	}
}

func port(p model.NullPort) *uint16 {
	if !p.Valid {
		return nil
	}
	v := p.Port
	return &v
}

// Map renders the document with JSON-compatible values only: numbers as
// float64, times as RFC 3339 strings and the payload as raw bytes.
func (d Document) Map() map[string]interface{} {
	m := map[string]interface{}{
		"key":        d.Key,
		"src":        d.Src,
		"dst":        d.Dst,
		"src_port":   nullablePort(d.SrcPort),
		"dst_port":   nullablePort(d.DstPort),
		"protocol":   d.Protocol,
		"direction":  d.Direction,
		"state":      d.State,
		"end_reason": d.EndReason,
		"start":      d.Start.UTC().Format(time.RFC3339Nano),
		"end":        d.End.UTC().Format(time.RFC3339Nano),
		"packets":    float64(d.Packets),
		"bytes":      float64(d.Bytes),
		"payload":    d.Payload,
	}

	m["tags"] = stringList(d.Tags)

	msgs := make([]interface{}, 0, len(d.DNS))
	for _, msg := range d.DNS {
		questions := make([]interface{}, 0, len(msg.Questions))
		for _, q := range msg.Questions {
			questions = append(questions, map[string]interface{}{"name": q.Name, "type": q.Type, "class": q.Class})
		}
		answers := make([]interface{}, 0, len(msg.Answers))
		for _, a := range msg.Answers {
			answers = append(answers, map[string]interface{}{"name": a.Name, "type": a.Type, "ttl": float64(a.TTL), "data": a.Data})
		}
		msgs = append(msgs, map[string]interface{}{
			"id":        float64(msg.ID),
			"response":  msg.Response,
			"opcode":    msg.Opcode,
			"rcode":     msg.Rcode,
			"questions": questions,
			"answers":   answers,
		})
	}
	m["dns"] = msgs
	m["http"] = httpMap(d.HTTP)
	m["tls"] = tlsMap(d.TLS)
	return m
}

func httpMap(h *model.HTTPMessage) interface{} {
	if h == nil {
		return nil
	}
	headers := make(map[string]interface{}, len(h.Headers))
	for k, v := range h.Headers {
		headers[k] = v
	}
	return map[string]interface{}{
		"type":           h.Type,
		"method":         h.Method,
		"uri":            h.URI,
		"host":           h.Host,
		"status_code":    float64(h.StatusCode),
		"status":         h.Status,
		"proto":          h.Proto,
		"content_length": float64(h.ContentLength),
		"headers":        headers,
		"weird":          h.Weird,
	}
}

func tlsMap(t *model.TLSSummary) interface{} {
	if t == nil {
		return nil
	}
	return map[string]interface{}{
		"type":               t.Type,
		"version":            t.Version,
		"handshakes":         float64(t.Handshakes),
		"change_cipher_spec": float64(t.ChangeCipherSpec),
		"alerts":             float64(t.Alerts),
		"app_data":           float64(t.AppData),
		"incomplete":         t.Incomplete,
		"server_name":        t.ServerName,
		"cipher_suites":      stringList(t.CipherSuites),
		"alpn":               stringList(t.ALPN),
		"cipher_suite":       t.CipherSuite,
		"hello_version":      t.HelloVersion,
	}
}

func stringList(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func nullablePort(p *uint16) interface{} {
	if p == nil {
		return nil
	}
	return float64(*p)
}
