package pcapgen

import (
	"crypto/tls"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

const (
	recordHandshake        = 22
	recordChangeCipherSpec = 20

	handshakeClientHello = 1
	handshakeServerHello = 2

	extServerName        = 0
	extALPN              = 16
	extSupportedVersions = 43
)

// ClientHello returns a TLS record holding a ClientHello for serverName that
// offers TLS 1.3 and 1.2 and the h2 and http/1.1 protocols.
func ClientHello(serverName string) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(tls.VersionTLS12)
	b.AddBytes(make([]byte, 32)) // random
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(0x0a0a) // GREASE
		b.AddUint16(tls.TLS_AES_128_GCM_SHA256)
		b.AddUint16(tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddUint8(0) })
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(extServerName)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0) // host_name
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes([]byte(serverName)) })
			})
		})
		b.AddUint16(extALPN)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, proto := range []string{"h2", "http/1.1"} {
					b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes([]byte(proto)) })
				}
			})
		})
		b.AddUint16(extSupportedVersions)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(tls.VersionTLS13)
				b.AddUint16(tls.VersionTLS12)
			})
		})
	})
	body, err := b.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build client hello")
	}
	return handshakeRecord(tls.VersionTLS10, handshakeClientHello, body)
}

// ServerHello returns a TLS record holding a ServerHello that picks suite,
// followed by a ChangeCipherSpec record. A version of TLS 1.3 is announced
// through the supported_versions extension.
func ServerHello(version, suite uint16) ([]byte, error) {
	var b cryptobyte.Builder
	legacy := version
	if version == tls.VersionTLS13 {
		legacy = tls.VersionTLS12
	}
	b.AddUint16(legacy)
	b.AddBytes(make([]byte, 32))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {})
	b.AddUint16(suite)
	b.AddUint8(0)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		if version == tls.VersionTLS13 {
			b.AddUint16(extSupportedVersions)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddUint16(version) })
		}
	})
	body, err := b.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build server hello")
	}
	hello, err := handshakeRecord(tls.VersionTLS12, handshakeServerHello, body)
	if err != nil {
		return nil, err
	}
	return append(hello, recordChangeCipherSpec, 0x03, 0x03, 0x00, 0x01, 0x01), nil
}

func handshakeRecord(version uint16, msgType uint8, body []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(recordHandshake)
	b.AddUint16(version)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(msgType)
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(body) })
	})
	out, err := b.Bytes()
	return out, errors.Wrap(err, "failed to build handshake record")
}
