// Package pcapgen builds Ethernet frames and writes them as pcap or pcapng
// captures. It backs the generate command and the capture fixtures of the
// test suites.
package pcapgen

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// SnapLen is the snapshot length written into generated capture headers.
const SnapLen = 65536

var (
	ClientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	ServerMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Packet is a frame with its capture time.
type Packet struct {
	Timestamp time.Time
	Data      []byte
}

// TCPSegment describes a TCP segment to serialize.
type TCPSegment struct {
	Src, Dst         net.IP
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	SYN, ACK         bool
	FIN, RST, PSH    bool
	Payload          []byte
}

// TCP serializes an Ethernet/IP/TCP frame. The IP version follows Src.
func TCP(s TCPSegment) ([]byte, error) {
	eth, ip, err := network(s.Src, s.Dst, layers.IPProtocolTCP)
	if err != nil {
		return nil, err
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     s.Seq,
		Ack:     s.Ack,
		SYN:     s.SYN,
		ACK:     s.ACK,
		FIN:     s.FIN,
		RST:     s.RST,
		PSH:     s.PSH,
		Window:  14600,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, errors.Wrap(err, "tcp checksum")
	}
	return serialize(eth, ip.(gopacket.SerializableLayer), tcp, gopacket.Payload(s.Payload))
}

// UDP serializes an Ethernet/IP/UDP frame.
func UDP(src, dst net.IP, sport, dport uint16, payload []byte) ([]byte, error) {
	eth, ip, err := network(src, dst, layers.IPProtocolUDP)
	if err != nil {
		return nil, err
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, errors.Wrap(err, "udp checksum")
	}
	return serialize(eth, ip.(gopacket.SerializableLayer), udp, gopacket.Payload(payload))
}

// ICMPEcho serializes an echo request over ICMPv4 or ICMPv6.
func ICMPEcho(src, dst net.IP, id, seq uint16, payload []byte) ([]byte, error) {
	if src.To4() != nil {
		eth, ip, err := network(src, dst, layers.IPProtocolICMPv4)
		if err != nil {
			return nil, err
		}
		icmp := &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       id,
			Seq:      seq,
		}
		return serialize(eth, ip.(gopacket.SerializableLayer), icmp, gopacket.Payload(payload))
	}

	eth, ip, err := network(src, dst, layers.IPProtocolICMPv6)
	if err != nil {
		return nil, err
	}
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
	if err := icmp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, errors.Wrap(err, "icmpv6 checksum")
	}
	echo := &layers.ICMPv6Echo{Identifier: id, SeqNumber: seq}
	return serialize(eth, ip.(gopacket.SerializableLayer), icmp, echo, gopacket.Payload(payload))
}

// ARPRequest serializes a who-has request for target.
func ARPRequest(sender, target net.IP) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       ClientMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   ClientMAC,
		SourceProtAddress: sender.To4(),
		DstHwAddress:      make(net.HardwareAddr, 6),
		DstProtAddress:    target.To4(),
	}
	return serialize(eth, arp)
}

func network(src, dst net.IP, proto layers.IPProtocol) (*layers.Ethernet, gopacket.NetworkLayer, error) {
	eth := &layers.Ethernet{SrcMAC: ClientMAC, DstMAC: ServerMAC}

	if src4, dst4 := src.To4(), dst.To4(); src4 != nil && dst4 != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		return eth, &layers.IPv4{
			Version:  4,
			TTL:      64,
			SrcIP:    src4,
			DstIP:    dst4,
			Protocol: proto,
		}, nil
	}
	if src.To16() == nil || dst.To16() == nil || (src.To4() == nil) != (dst.To4() == nil) {
		return nil, nil, errors.Errorf("mismatched or invalid addresses %v -> %v", src, dst)
	}
	eth.EthernetType = layers.EthernetTypeIPv6
	return eth, &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		SrcIP:      src.To16(),
		DstIP:      dst.To16(),
		NextHeader: proto,
	}, nil
}

func serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, errors.Wrap(err, "failed to serialize layers")
	}
	return buf.Bytes(), nil
}

func captureInfo(p Packet) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     p.Timestamp,
		CaptureLength: len(p.Data),
		Length:        len(p.Data),
	}
}

// Write writes packets as a classic pcap capture.
func Write(w io.Writer, packets []Packet) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(SnapLen, layers.LinkTypeEthernet); err != nil {
		return errors.Wrap(err, "failed to write pcap header")
	}
	for _, p := range packets {
		if err := pw.WritePacket(captureInfo(p), p.Data); err != nil {
			return errors.Wrap(err, "failed to write packet")
		}
	}
	return nil
}

// WriteNG writes packets as a pcapng capture with a single Ethernet interface.
func WriteNG(w io.Writer, packets []Packet) error {
	nw, err := pcapgo.NewNgWriter(w, layers.LinkTypeEthernet)
	if err != nil {
		return errors.Wrap(err, "failed to write pcapng header")
	}
	for _, p := range packets {
		if err := nw.WritePacket(captureInfo(p), p.Data); err != nil {
			return errors.Wrap(err, "failed to write packet")
		}
	}
	return errors.Wrap(nw.Flush(), "failed to flush pcapng writer")
}

// WriteFile creates path and writes packets in the given format, "pcap" or "pcapng".
func WriteFile(path, format string, packets []Packet) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	switch format {
	case "", "pcap":
		err = Write(f, packets)
	case "pcapng":
		err = WriteNG(f, packets)
	default:
		err = errors.Errorf("unknown capture format %q", format)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
