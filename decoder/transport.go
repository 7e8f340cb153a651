package decoder

import (
	"encoding/binary"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// IANA protocol numbers consumed by the transport decoder.
const (
	ProtoUDP = 17
	ProtoTCP = 6
)

// TCPFlags are the independent boolean flags of the 16-bit
// data-offset/flags word, masked off the 4-bit data-offset nibble.
type TCPFlags struct {
	NS, CWR, ECE, URG, ACK, PSH, RST, SYN, FIN bool
}

const (
	tcpFlagFIN = 0x0001
	tcpFlagSYN = 0x0002
	tcpFlagRST = 0x0004
	tcpFlagPSH = 0x0008
	tcpFlagACK = 0x0010
	tcpFlagURG = 0x0020
	tcpFlagECE = 0x0040
	tcpFlagCWR = 0x0080
	tcpFlagNS  = 0x0100
)

func decodeTCPFlags(word uint16) TCPFlags {
	return TCPFlags{
		FIN: word&tcpFlagFIN != 0,
		SYN: word&tcpFlagSYN != 0,
		RST: word&tcpFlagRST != 0,
		PSH: word&tcpFlagPSH != 0,
		ACK: word&tcpFlagACK != 0,
		URG: word&tcpFlagURG != 0,
		ECE: word&tcpFlagECE != 0,
		CWR: word&tcpFlagCWR != 0,
		NS:  word&tcpFlagNS != 0,
	}
}

// UDPSegment is a decoded UDP datagram.
type UDPSegment struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
	Payload  []byte
}

// TCPSegment is a decoded TCP segment.
type TCPSegment struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	Ack      uint32
	Flags    TCPFlags
	Window   uint16
	Checksum uint16
	Urgent   uint16
	Options  []byte
	Payload  []byte
}

// DecodeUDP parses a UDP datagram: src, dst, length, checksum, payload.
func DecodeUDP(buf []byte) (UDPSegment, error) {
	if len(buf) < 8 {
		return UDPSegment{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "udp header truncated")
	}

	length := binary.BigEndian.Uint16(buf[4:6])
	end := int(length)
	if end < 8 || len(buf) < end {
		end = len(buf)
	}

	return UDPSegment{
		SrcPort:  binary.BigEndian.Uint16(buf[0:2]),
		DstPort:  binary.BigEndian.Uint16(buf[2:4]),
		Length:   length,
		Checksum: binary.BigEndian.Uint16(buf[6:8]),
		Payload:  buf[8:end],
	}, nil
}

// DecodeTCP parses a TCP segment: src, dst, seq, ack,
// data-offset/flags/window, checksum, urgent pointer, options
// (data_offset*4-20 bytes), payload.
func DecodeTCP(buf []byte) (TCPSegment, error) {
	if len(buf) < 20 {
		return TCPSegment{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "tcp header truncated")
	}

	offsetFlags := binary.BigEndian.Uint16(buf[12:14])
	dataOffset := int(offsetFlags>>12) * 4
	flagsWord := offsetFlags & 0x01FF

	if dataOffset < 20 || len(buf) < dataOffset {
		return TCPSegment{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "tcp data offset overruns buffer")
	}

	return TCPSegment{
		SrcPort:  binary.BigEndian.Uint16(buf[0:2]),
		DstPort:  binary.BigEndian.Uint16(buf[2:4]),
		Seq:      binary.BigEndian.Uint32(buf[4:8]),
		Ack:      binary.BigEndian.Uint32(buf[8:12]),
		Flags:    decodeTCPFlags(flagsWord),
		Window:   binary.BigEndian.Uint16(buf[14:16]),
		Checksum: binary.BigEndian.Uint16(buf[16:18]),
		Urgent:   binary.BigEndian.Uint16(buf[18:20]),
		Options:  buf[20:dataOffset],
		Payload:  buf[dataOffset:],
	}, nil
}
