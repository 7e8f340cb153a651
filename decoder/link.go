/*
 * Adapted from the netcap decoder registry idiom (gopacketDecoder.go): a
 * named stage with its own logger, operating on raw bytes instead of
 * dispatching across a gopacket.LayerType map, since this package only ever
 * peels exactly three layers of one known stack.
 */

package decoder

import (
	"encoding/binary"
	"net"

	"go.uber.org/zap"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// LinkType names which link-layer encoding a frame decoded as.
type LinkType uint8

const (
	LinkSLL LinkType = iota
	LinkEthernet
)

// EtherType values relevant to the network-layer selector.
const (
	EtherTypeIPv4    = 0x0800
	EtherTypeIPv6    = 0x86DD
	EtherTypeVLAN    = 0x8100
	EtherTypeVLANAD  = 0x88A8
	EtherTypeVLANQQ  = 0x9100
)

// LinkFrame is the result of peeling the link layer: the network-layer
// EtherType selector, an optional VLAN id, and the remaining bytes.
type LinkFrame struct {
	Type      LinkType
	EtherType uint16
	VLANID    uint16
	HasVLAN   bool
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	Payload   []byte
}

// DecodeLink selects Linux-cooked (SLL) or Ethernet II by a prefix test: if
// the first two bytes are 0x0000, the frame is SLL.
func DecodeLink(buf []byte, log *zap.Logger) (LinkFrame, error) {
	if len(buf) < 2 {
		return LinkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "link frame too short")
	}

	if buf[0] == 0 && buf[1] == 0 {
		return decodeSLL(buf)
	}

	return decodeEthernet(buf, log)
}

// decodeSLL parses Linux-cooked capture framing: packet_type, addr_type,
// addr_len (u16 each), addr_len bytes of link-layer address, a 2-byte pad,
// then a 2-byte protocol.
func decodeSLL(buf []byte) (LinkFrame, error) {
	const fixedLen = 2 + 2 + 2 // packet_type + addr_type + addr_len
	if len(buf) < fixedLen {
		return LinkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sll header truncated")
	}

	addrLen := binary.BigEndian.Uint16(buf[4:6])
	off := fixedLen + int(addrLen)

	// 2-byte pad follows the address, then the 2-byte protocol field.
	need := off + 2 + 2
	if len(buf) < need {
		return LinkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sll address/pad/protocol truncated")
	}

	protocol := binary.BigEndian.Uint16(buf[off+2 : off+4])

	return LinkFrame{
		Type:      LinkSLL,
		EtherType: protocol,
		Payload:   buf[need:],
	}, nil
}

// decodeEthernet parses a standard Ethernet II frame, following any single
// level of 802.1Q/802.1ad VLAN tagging.
func decodeEthernet(buf []byte, log *zap.Logger) (LinkFrame, error) {
	const headerLen = 6 + 6 + 2
	if len(buf) < headerLen {
		return LinkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "ethernet header truncated")
	}

	frame := LinkFrame{
		Type:   LinkEthernet,
		DstMAC: net.HardwareAddr(buf[0:6]),
		SrcMAC: net.HardwareAddr(buf[6:12]),
	}

	etherType := binary.BigEndian.Uint16(buf[12:14])
	off := 14

	if etherType == EtherTypeVLAN || etherType == EtherTypeVLANAD || etherType == EtherTypeVLANQQ {
		if len(buf) < off+4 {
			return LinkFrame{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "vlan tag truncated")
		}
		tci := binary.BigEndian.Uint16(buf[off : off+2])
		inner := binary.BigEndian.Uint16(buf[off+2 : off+4])

		frame.HasVLAN = true
		frame.VLANID = tci & 0x0FFF
		etherType = inner
		off += 4

		if log != nil {
			log.Debug("vlan tagged frame", zap.Uint16("vlan_id", frame.VLANID))
		}
	}

	frame.EtherType = etherType
	frame.Payload = buf[off:]

	return frame, nil
}
