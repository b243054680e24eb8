package pcapgen

import (
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Generator produces plausible traffic: TCP sessions with a handshake,
// a request, a response and a teardown, interleaved with DNS lookups.
type Generator struct {
	rng   *rand.Rand
	clock time.Time
	gap   time.Duration
}

// NewGenerator creates a generator whose first packet is stamped start.
// Consecutive packets are gap apart.
func NewGenerator(seed int64, start time.Time, gap time.Duration) *Generator {
	if gap <= 0 {
		gap = time.Millisecond
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), clock: start, gap: gap}
}

func (g *Generator) stamp(data []byte) Packet {
	p := Packet{Timestamp: g.clock, Data: data}
	g.clock = g.clock.Add(g.gap)
	return p
}

func (g *Generator) clientIP() net.IP {
	return net.IPv4(192, 168, byte(g.rng.Intn(4)), byte(g.rng.Intn(253)+1))
}

func (g *Generator) serverIP() net.IP {
	return net.IPv4(byte(g.rng.Intn(200)+11), byte(g.rng.Intn(256)), byte(g.rng.Intn(256)), byte(g.rng.Intn(254)+1))
}

func (g *Generator) ephemeral() uint16 {
	return uint16(g.rng.Intn(65535-49152) + 49152)
}

// Session returns the frames of one TCP conversation against port carrying
// random payloads.
func (g *Generator) Session(port uint16) ([]Packet, error) {
	client, server := g.clientIP(), g.serverIP()
	cport := g.ephemeral()
	cseq, sseq := g.rng.Uint32(), g.rng.Uint32()

	request := make([]byte, g.rng.Intn(200)+20)
	g.rng.Read(request)
	response := make([]byte, g.rng.Intn(1200)+50)
	g.rng.Read(response)

	return g.conversation(client, server, cport, port, cseq, sseq, request, response)
}

// Exchange returns the frames of one TCP conversation against port in which
// the client sends request and the server answers with response.
func (g *Generator) Exchange(port uint16, request, response []byte) ([]Packet, error) {
	client, server := g.clientIP(), g.serverIP()
	return g.conversation(client, server, g.ephemeral(), port, g.rng.Uint32(), g.rng.Uint32(), request, response)
}

func (g *Generator) conversation(client, server net.IP, cport, port uint16, cseq, sseq uint32, request, response []byte) ([]Packet, error) {
	segments := []TCPSegment{
		{Src: client, Dst: server, SrcPort: cport, DstPort: port, Seq: cseq, SYN: true},
		{Src: server, Dst: client, SrcPort: port, DstPort: cport, Seq: sseq, Ack: cseq + 1, SYN: true, ACK: true},
		{Src: client, Dst: server, SrcPort: cport, DstPort: port, Seq: cseq + 1, Ack: sseq + 1, ACK: true, PSH: true, Payload: request},
		{Src: server, Dst: client, SrcPort: port, DstPort: cport, Seq: sseq + 1, Ack: cseq + 1 + uint32(len(request)), ACK: true, PSH: true, Payload: response},
		{Src: client, Dst: server, SrcPort: cport, DstPort: port, Seq: cseq + 1 + uint32(len(request)), Ack: sseq + 1 + uint32(len(response)), FIN: true, ACK: true},
	}

	out := make([]Packet, 0, len(segments))
	for _, s := range segments {
		data, err := TCP(s)
		if err != nil {
			return nil, err
		}
		out = append(out, g.stamp(data))
	}
	return out, nil
}

// HTTPRequest returns a GET request head for path on host.
func HTTPRequest(host, path string) []byte {
	return []byte("GET " + path + " HTTP/1.1\r\nHost: " + host + "\r\nUser-Agent: pcapgen\r\nAccept: */*\r\n\r\n")
}

// HTTPResponse returns a 200 response carrying body.
func HTTPResponse(body string) []byte {
	return []byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body)
}

// Lookup returns a DNS query for name and its answer.
func (g *Generator) Lookup(name string) ([]Packet, error) {
	client, resolver := g.clientIP(), net.IPv4(192, 168, 0, 1)
	cport := g.ephemeral()

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(name), dns.TypeA)
	answer := new(dns.Msg)
	answer.SetReply(query)
	answer.Answer = append(answer.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   g.serverIP(),
	})

	qb, err := query.Pack()
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack dns query")
	}
	ab, err := answer.Pack()
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack dns answer")
	}

	qf, err := UDP(client, resolver, cport, 53, qb)
	if err != nil {
		return nil, err
	}
	af, err := UDP(resolver, client, 53, cport, ab)
	if err != nil {
		return nil, err
	}
	return []Packet{g.stamp(qf), g.stamp(af)}, nil
}

var servicePorts = []uint16{22, 80, 443, 8080}

var lookupNames = []string{"example.com", "example.org", "example.net"}

// Traffic returns n conversations, each a DNS lookup followed by a TCP session.
func (g *Generator) Traffic(n int) ([]Packet, error) {
	var out []Packet
	for i := 0; i < n; i++ {
		lookup, err := g.Lookup(lookupNames[g.rng.Intn(len(lookupNames))])
		if err != nil {
			return nil, err
		}
		session, err := g.Session(servicePorts[g.rng.Intn(len(servicePorts))])
		if err != nil {
			return nil, err
		}
		out = append(out, lookup...)
		out = append(out, session...)
	}
	return out, nil
}
