package decoder

import (
	"encoding/binary"
	"net"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// NetworkFrame is the result of peeling the network layer: the transport
// protocol selector plus source/destination addresses and the
// transport-carrying payload slice.
type NetworkFrame struct {
	Protocol uint8 // IANA protocol number: 17=UDP, 6=TCP
	SrcIP    net.IP
	DstIP    net.IP
	Payload  []byte
}

// DecodeNetwork dispatches on etherType: 0x0800 decodes IPv4, 0x86DD
// decodes IPv6. Any other value fails the packet.
func DecodeNetwork(etherType uint16, buf []byte) (NetworkFrame, error) {
	switch etherType {
	case EtherTypeIPv4:
		return decodeIPv4(buf)
	case EtherTypeIPv6:
		return decodeIPv6(buf)
	default:
		return NetworkFrame{}, someiperr.Wrapf(someiperr.ErrInvalidPacketFormat, "unsupported ethertype 0x%04x", etherType)
	}
}

// decodeIPv4 parses the fixed 20-byte IPv4 header (options, if any, are
// skipped via IHL). The transport-carrying payload slice is
// [IHL*4, total_length).
func decodeIPv4(buf []byte) (NetworkFrame, error) {
	if len(buf) < 20 {
		return NetworkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "ipv4 header truncated")
	}

	ihl := int(buf[0]&0x0F) * 4
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	protocol := buf[9]

	if ihl < 20 || len(buf) < ihl {
		return NetworkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "ipv4 ihl overruns buffer")
	}
	if totalLen < ihl || len(buf) < totalLen {
		return NetworkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "ipv4 total length overruns buffer")
	}

	return NetworkFrame{
		Protocol: protocol,
		SrcIP:    net.IP(buf[12:16]),
		DstIP:    net.IP(buf[16:20]),
		Payload:  buf[ihl:totalLen],
	}, nil
}

// decodeIPv6 parses the fixed 40-byte IPv6 header. The next-header field is
// the protocol selector; the payload-length field bounds the transport
// segment (extension headers are not walked — unsupported next-headers
// simply pass their bytes through to the transport decoder, which will
// reject them).
func decodeIPv6(buf []byte) (NetworkFrame, error) {
	if len(buf) < 40 {
		return NetworkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "ipv6 header truncated")
	}

	payloadLen := int(binary.BigEndian.Uint16(buf[4:6]))
	nextHeader := buf[6]

	end := 40 + payloadLen
	if len(buf) < end {
		return NetworkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "ipv6 payload length overruns buffer")
	}

	return NetworkFrame{
		Protocol: nextHeader,
		SrcIP:    net.IP(buf[8:24]),
		DstIP:    net.IP(buf[24:40]),
		Payload:  buf[40:end],
	}, nil
}
