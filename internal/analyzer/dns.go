package analyzer

import (
	"strings"

	"FlowChains/internal/core/model"
	contract "FlowChains/internal/model"

	"github.com/miekg/dns"
)

const dnsPort = 53

func init() {
	Register("dns", func() contract.Analyzer { return DNS{} })
}

// DNS decodes the DNS messages carried by flows that touch port 53.
type DNS struct{}

func (DNS) Name() string { return "dns" }

// Analyze unpacks each packet's data as a DNS message. TCP segments carry a
// two byte length prefix. Data that does not parse is ignored.
func (DNS) Analyze(flow *model.FlowRecord) {
	if flow == nil || !isDNSFlow(flow.FlowID) {
		return
	}
	for _, p := range flow.Packets {
		if p.Transport == nil || len(p.Transport.Data) == 0 {
			continue
		}
		data := p.Transport.Data
		if p.Transport.Type == model.TransportTCP {
			if len(data) < 2 {
				continue
			}
			data = data[2:]
		}
		msg := new(dns.Msg)
		if err := msg.Unpack(data); err != nil {
			continue
		}
		flow.DNS = append(flow.DNS, summarize(msg))
	}
}

func isDNSFlow(k model.FlowKey) bool {
	if k.Protocol != model.TransportUDP && k.Protocol != model.TransportTCP {
		return false
	}
	return (k.SrcPort.Valid && k.SrcPort.Port == dnsPort) || (k.DstPort.Valid && k.DstPort.Port == dnsPort)
}

func summarize(msg *dns.Msg) model.DNSMessage {
	out := model.DNSMessage{
		ID:       msg.Id,
		Response: msg.Response,
		Opcode:   dns.OpcodeToString[msg.Opcode],
		Rcode:    dns.RcodeToString[msg.Rcode],
	}
	for _, q := range msg.Question {
		out.Questions = append(out.Questions, model.DNSQuestion{
			Name:  strings.TrimSuffix(q.Name, "."),
			Type:  dns.TypeToString[q.Qtype],
			Class: dns.ClassToString[q.Qclass],
		})
	}
	for _, rr := range msg.Answer {
		h := rr.Header()
		out.Answers = append(out.Answers, model.DNSAnswer{
			Name: strings.TrimSuffix(h.Name, "."),
			Type: dns.TypeToString[h.Rrtype],
			TTL:  h.Ttl,
			Data: rdata(rr),
		})
	}
	return out
}

// rdata renders the record data without the header fields.
func rdata(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String()
	case *dns.AAAA:
		return v.AAAA.String()
	case *dns.CNAME:
		return strings.TrimSuffix(v.Target, ".")
	case *dns.PTR:
		return strings.TrimSuffix(v.Ptr, ".")
	case *dns.NS:
		return strings.TrimSuffix(v.Ns, ".")
	case *dns.MX:
		return strings.TrimSuffix(v.Mx, ".")
	case *dns.TXT:
		return strings.Join(v.Txt, " ")
	default:
		return strings.TrimPrefix(rr.String(), rr.Header().String())
	}
}
