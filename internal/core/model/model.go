package model

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Network layer type names as produced by the decoder.
const (
	NetworkIPv4 = "IP"
	NetworkIPv6 = "IP6"
)

// Transport layer type names as produced by the decoder.
const (
	TransportTCP   = "TCP"
	TransportUDP   = "UDP"
	TransportICMP  = "ICMP"
	TransportICMP6 = "ICMP6"
)

// NetworkLayer holds the decoded network header fields of a packet.
type NetworkLayer struct {
	Type   string // "IP", "IP6" or another network type
	Src    net.IP
	Dst    net.IP
	Length int
	TTL    uint8

	// Filled in by the reverse DNS enrichment stage, empty otherwise.
	SrcDomain string
	DstDomain string
}

// TransportLayer holds the decoded transport header fields of a packet.
// Ports are only valid for protocols that carry them, Seq and Flags only for TCP.
type TransportLayer struct {
	Type    string // "TCP", "UDP" or another transport type
	SrcPort NullPort
	DstPort NullPort
	Seq     *uint32
	Flags   TCPFlags
	Data    []byte
}

// PacketRecord is a single decoded packet. Network and Transport are nil
// when the packet did not carry (or the decoder did not understand) that layer.
// Transport is never set without Network.
type PacketRecord struct {
	Timestamp time.Time
	Network   *NetworkLayer
	Transport *TransportLayer
}

// NullPort is a transport port that may be absent.
type NullPort struct {
	Port  uint16
	Valid bool
}

// PortOf returns a valid NullPort.
func PortOf(p uint16) NullPort {
	return NullPort{Port: p, Valid: true}
}

func (p NullPort) String() string {
	if !p.Valid {
		return "-"
	}
	return strconv.Itoa(int(p.Port))
}

// TCPFlags is the set of readable TCP control flags of a segment.
type TCPFlags uint8

const (
	FlagSyn TCPFlags = 1 << iota
	FlagSynAck
	FlagFin
	FlagFinAck
	FlagRst
)

// Has reports whether every flag in f is set.
func (t TCPFlags) Has(f TCPFlags) bool {
	return f != 0 && t&f == f
}

func (t TCPFlags) String() string {
	names := []struct {
		flag TCPFlags
		name string
	}{
		{FlagSyn, "syn"}, {FlagSynAck, "syn_ack"}, {FlagFin, "fin"}, {FlagFinAck, "fin_ack"}, {FlagRst, "rst"},
	}
	out := ""
	for _, n := range names {
		if t.Has(n.flag) {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	return "[" + out + "]"
}

// FlowKey identifies a flow: (src, dst, sport, dport, protocol). Absent
// components are the zero value ("" or an invalid NullPort).
type FlowKey struct {
	Src      string
	Dst      string
	SrcPort  NullPort
	DstPort  NullPort
	Protocol string
}

func (k FlowKey) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s, %s)",
		orDash(k.Src), orDash(k.Dst), k.SrcPort, k.DstPort, orDash(k.Protocol))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Direction is the estimated traffic direction of a flow.
type Direction uint8

const (
	CTS Direction = iota // client to server
	STC                  // server to client
)

func (d Direction) String() string {
	if d == STC {
		return "STC"
	}
	return "CTS"
}

// State is the lifecycle state of a flow.
type State uint8

const (
	StatePartial State = iota
	StatePartialSyn
	StateComplete
)

func (s State) String() string {
	switch s {
	case StatePartialSyn:
		return "partial_syn"
	case StateComplete:
		return "complete"
	default:
		return "partial"
	}
}

// EndReason records why a flow was emitted.
type EndReason uint8

const (
	EndReasonComplete EndReason = iota + 1
	EndReasonDeadline
	EndReasonFlush
)

func (r EndReason) String() string {
	switch r {
	case EndReasonComplete:
		return "complete"
	case EndReasonDeadline:
		return "deadline"
	case EndReasonFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// FlowRecord is an emitted flow. Once handed out by the flow table nothing
// else holds a reference to it.
type FlowRecord struct {
	FlowID    FlowKey
	Protocol  string
	Direction Direction
	Packets   []*PacketRecord
	Payload   []byte
	Start     time.Time
	End       time.Time
	State     State
	EndReason EndReason

	// Filled in by analyzers.
	DNS  []DNSMessage
	HTTP *HTTPMessage
	TLS  *TLSSummary
	Tags []string
}

// Key renders the flow identity.
func (f *FlowRecord) Key() string {
	return f.FlowID.String()
}

// Bytes returns the payload length.
func (f *FlowRecord) Bytes() int {
	return len(f.Payload)
}

// DNSMessage is a summary of one DNS message found in a flow.
type DNSMessage struct {
	ID        uint16
	Response  bool
	Opcode    string
	Rcode     string
	Questions []DNSQuestion
	Answers   []DNSAnswer
}

// DNSQuestion is a single question section entry.
type DNSQuestion struct {
	Name  string
	Type  string
	Class string
}

// DNSAnswer is a single answer section entry.
type DNSAnswer struct {
	Name string
	Type string
	TTL  uint32
	Data string
}

// HTTP message kinds.
const (
	HTTPRequest  = "HTTP_REQUEST"
	HTTPResponse = "HTTP_RESPONSE"
)

// HTTPMessage is the head of the first HTTP request or response in a flow.
type HTTPMessage struct {
	Type string
	// Request line, set for requests. URI is unescaped.
	Method string
	URI    string
	Host   string
	// Status line, set for responses.
	StatusCode int
	Status     string

	Proto         string
	ContentLength int64
	Headers       map[string]string
	// Weird flags HTTP found where it is not expected, such as over UDP.
	Weird string
}

// TLS record stream kinds.
const (
	TLSClientToServer = "TLS_CTS"
	TLSServerToClient = "TLS_STC"
)

// TLSSummary describes the TLS records of a flow.
type TLSSummary struct {
	Type    string
	Version string // record layer version of the first record
	// Record counts by content type.
	Handshakes       int
	ChangeCipherSpec int
	Alerts           int
	AppData          int
	// Incomplete is set when the payload ends inside a record.
	Incomplete bool

	// From the ClientHello.
	ServerName   string
	CipherSuites []string
	ALPN         []string
	// From the ServerHello.
	CipherSuite string
	// HelloVersion is the version the hello negotiates, honoring the
	// supported_versions extension.
	HelloVersion string
}
