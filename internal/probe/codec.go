package probe

import (
	"encoding/base64"
	"net"
	"time"

	"FlowChains/internal/core/model"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePacket serializes a packet record as a protobuf Struct.
func EncodePacket(p *model.PacketRecord) ([]byte, error) {
	if p == nil {
		return nil, errors.New("probe: nil packet record")
	}
	m := map[string]interface{}{
		"timestamp": p.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if n := p.Network; n != nil {
		m["network"] = map[string]interface{}{
			"type":   n.Type,
			"src":    ipString(n.Src),
			"dst":    ipString(n.Dst),
			"length": float64(n.Length),
			"ttl":    float64(n.TTL),
		}
	}
	if t := p.Transport; t != nil {
		tm := map[string]interface{}{
			"type":  t.Type,
			"flags": float64(t.Flags),
			"data":  t.Data,
		}
		if t.SrcPort.Valid {
			tm["src_port"] = float64(t.SrcPort.Port)
		}
		if t.DstPort.Valid {
			tm["dst_port"] = float64(t.DstPort.Port)
		}
		if t.Seq != nil {
			tm["seq"] = float64(*t.Seq)
		}
		m["transport"] = tm
	}

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build packet struct")
	}
	return proto.Marshal(s)
}

// DecodePacket is the inverse of EncodePacket.
func DecodePacket(data []byte) (*model.PacketRecord, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal packet")
	}
	fields := s.GetFields()

	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return nil, errors.Wrap(err, "invalid packet timestamp")
	}
	p := &model.PacketRecord{Timestamp: ts}

	if nv, ok := fields["network"]; ok {
		n := nv.GetStructValue().GetFields()
		p.Network = &model.NetworkLayer{
			Type:   n["type"].GetStringValue(),
			Src:    net.ParseIP(n["src"].GetStringValue()),
			Dst:    net.ParseIP(n["dst"].GetStringValue()),
			Length: int(n["length"].GetNumberValue()),
			TTL:    uint8(n["ttl"].GetNumberValue()),
		}
	}

	if tv, ok := fields["transport"]; ok {
		t := tv.GetStructValue().GetFields()
		payload, err := base64.StdEncoding.DecodeString(t["data"].GetStringValue())
		if err != nil {
			return nil, errors.Wrap(err, "invalid transport data")
		}
		tr := &model.TransportLayer{
			Type:  t["type"].GetStringValue(),
			Flags: model.TCPFlags(t["flags"].GetNumberValue()),
			Data:  payload,
		}
		if v, ok := t["src_port"]; ok {
			tr.SrcPort = model.PortOf(uint16(v.GetNumberValue()))
		}
		if v, ok := t["dst_port"]; ok {
			tr.DstPort = model.PortOf(uint16(v.GetNumberValue()))
		}
		if v, ok := t["seq"]; ok {
			seq := uint32(v.GetNumberValue())
			tr.Seq = &seq
		}
		p.Transport = tr
	}
	return p, nil
}

func ipString(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}
