package analyzer

import (
	"crypto/tls"

	"FlowChains/internal/core/model"
	contract "FlowChains/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/crypto/cryptobyte"
)

const (
	recordChangeCipherSpec = 20
	recordHandshake        = 22
	recordApplicationData  = 23

	handshakeClientHello = 1
	handshakeServerHello = 2

	extServerName        = 0
	extALPN              = 16
	extSupportedVersions = 43
)

func init() {
	Register("tls", func() contract.Analyzer { return TLS{} })
}

// TLS summarizes the TLS records of TCP flows. Records are framed with
// gopacket; the ClientHello and ServerHello sent in the clear are unpacked for
// the server name, cipher suites, ALPN protocols and negotiated version.
type TLS struct{}

func (TLS) Name() string { return "tls" }

func (TLS) Analyze(flow *model.FlowRecord) {
	if flow == nil || flow.Protocol != model.TransportTCP || len(flow.Payload) == 0 {
		return
	}
	records, complete := splitRecords(flow.Payload)
	if len(records) == 0 {
		return
	}

	var layer layers.TLS
	if err := layer.DecodeFromBytes(flow.Payload[:complete], gopacket.NilDecodeFeedback); err != nil {
		return
	}
	sum := &model.TLSSummary{
		Type:             model.TLSServerToClient,
		Version:          layers.TLSVersion(records[0].version).String(),
		Handshakes:       len(layer.Handshake),
		ChangeCipherSpec: len(layer.ChangeCipherSpec),
		Alerts:           len(layer.Alert),
		AppData:          len(layer.AppData),
		Incomplete:       complete != len(flow.Payload),
	}
	if flow.Direction == model.CTS {
		sum.Type = model.TLSClientToServer
	}

	// Handshake messages may span records. Anything after the first
	// ChangeCipherSpec is encrypted.
	var plain []byte
	for _, r := range records {
		if r.contentType == recordChangeCipherSpec || r.contentType == recordApplicationData {
			break
		}
		if r.contentType == recordHandshake {
			plain = append(plain, r.body...)
		}
	}
	readHandshakes(plain, sum)
	flow.TLS = sum
}

type tlsRecord struct {
	contentType uint8
	version     uint16
	body        []byte
}

// splitRecords frames data into TLS records and returns them along with the
// length of the complete ones. Data that does not look like TLS yields none.
func splitRecords(data []byte) ([]tlsRecord, int) {
	var (
		out      []tlsRecord
		complete int
	)
	s := cryptobyte.String(data)
	for !s.Empty() {
		var (
			r    tlsRecord
			body cryptobyte.String
		)
		if !s.ReadUint8(&r.contentType) || !s.ReadUint16(&r.version) || !s.ReadUint16LengthPrefixed(&body) {
			break
		}
		if r.contentType < recordChangeCipherSpec || r.contentType > recordApplicationData || r.version>>8 != 3 {
			return nil, 0
		}
		r.body = body
		out = append(out, r)
		complete = len(data) - len(s)
	}
	return out, complete
}

func readHandshakes(data []byte, sum *model.TLSSummary) {
	s := cryptobyte.String(data)
	for !s.Empty() {
		var (
			msgType uint8
			msg     cryptobyte.String
		)
		if !s.ReadUint8(&msgType) || !s.ReadUint24LengthPrefixed(&msg) {
			return
		}
		switch msgType {
		case handshakeClientHello:
			readClientHello(msg, sum)
		case handshakeServerHello:
			readServerHello(msg, sum)
		}
	}
}

func readClientHello(msg cryptobyte.String, sum *model.TLSSummary) {
	var (
		version                       uint16
		sessionID, suites, compressed cryptobyte.String
	)
	if !msg.ReadUint16(&version) || !msg.Skip(32) ||
		!msg.ReadUint8LengthPrefixed(&sessionID) ||
		!msg.ReadUint16LengthPrefixed(&suites) ||
		!msg.ReadUint8LengthPrefixed(&compressed) {
		return
	}
	for !suites.Empty() {
		var id uint16
		if !suites.ReadUint16(&id) {
			return
		}
		if !grease(id) {
			sum.CipherSuites = append(sum.CipherSuites, tls.CipherSuiteName(id))
		}
	}

	highest := version
	var exts cryptobyte.String
	if msg.ReadUint16LengthPrefixed(&exts) {
		for !exts.Empty() {
			var (
				typ uint16
				ext cryptobyte.String
			)
			if !exts.ReadUint16(&typ) || !exts.ReadUint16LengthPrefixed(&ext) {
				break
			}
			switch typ {
			case extServerName:
				sum.ServerName = serverName(ext)
			case extALPN:
				sum.ALPN = protocols(ext)
			case extSupportedVersions:
				var list cryptobyte.String
				if !ext.ReadUint8LengthPrefixed(&list) {
					continue
				}
				for !list.Empty() {
					var v uint16
					if !list.ReadUint16(&v) {
						break
					}
					if !grease(v) && v > highest {
						highest = v
					}
				}
			}
		}
	}
	sum.HelloVersion = layers.TLSVersion(highest).String()
}

func readServerHello(msg cryptobyte.String, sum *model.TLSSummary) {
	var (
		version, suite uint16
		compression    uint8
		sessionID      cryptobyte.String
	)
	if !msg.ReadUint16(&version) || !msg.Skip(32) ||
		!msg.ReadUint8LengthPrefixed(&sessionID) ||
		!msg.ReadUint16(&suite) || !msg.ReadUint8(&compression) {
		return
	}
	sum.CipherSuite = tls.CipherSuiteName(suite)

	var exts cryptobyte.String
	if msg.ReadUint16LengthPrefixed(&exts) {
		for !exts.Empty() {
			var (
				typ uint16
				ext cryptobyte.String
			)
			if !exts.ReadUint16(&typ) || !exts.ReadUint16LengthPrefixed(&ext) {
				break
			}
			if typ == extSupportedVersions {
				var v uint16
				if ext.ReadUint16(&v) {
					version = v
				}
			}
		}
	}
	sum.HelloVersion = layers.TLSVersion(version).String()
}

func serverName(ext cryptobyte.String) string {
	var list cryptobyte.String
	if !ext.ReadUint16LengthPrefixed(&list) {
		return ""
	}
	for !list.Empty() {
		var (
			nameType uint8
			name     cryptobyte.String
		)
		if !list.ReadUint8(&nameType) || !list.ReadUint16LengthPrefixed(&name) {
			return ""
		}
		if nameType == 0 {
			return string(name)
		}
	}
	return ""
}

func protocols(ext cryptobyte.String) []string {
	var (
		list cryptobyte.String
		out  []string
	)
	if !ext.ReadUint16LengthPrefixed(&list) {
		return nil
	}
	for !list.Empty() {
		var proto cryptobyte.String
		if !list.ReadUint8LengthPrefixed(&proto) {
			break
		}
		out = append(out, string(proto))
	}
	return out
}

// grease reports whether v is one of the reserved values clients send to
// keep servers tolerant of unknown ones.
func grease(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}
