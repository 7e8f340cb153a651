/*
 * Adapted from the netcap decoder registry (gopacketDecoder.go): a Decode
 * stage with its own Description/Logger, counting records and recovering
 * from panics into a logged error rather than crashing the run.
 */

package decoder

import (
	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// FiveTuple identifies a transport-layer conversation.
type FiveTuple struct {
	Protocol uint8
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
}

// Datagram is the result of fully peeling one raw frame down to its
// transport-layer payload, alongside the five-tuple and any VLAN id seen.
type Datagram struct {
	Tuple   FiveTuple
	VLANID  uint16
	HasVLAN bool
	TCP     *TCPSegment
	UDP     *UDPSegment
}

// FrameDecoder peels link, network and transport headers off one raw
// capture buffer with strict bounds checking at every layer. It holds no
// mutable state beyond its logger and two record counters; it is safe for
// reuse across the whole run (single-consumer, no concurrent access).
type FrameDecoder struct {
	log          *zap.Logger
	NumDecoded   int64
	NumDropped   int64
}

// NewFrameDecoder builds a decoder logging to log (a no-op logger if nil).
func NewFrameDecoder(log *zap.Logger) *FrameDecoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &FrameDecoder{log: log}
}

// Decode runs one raw buffer through the link/network/transport layers. A
// decode failure at any layer is non-fatal: it increments NumDropped,
// logs at debug with a spew dump of the offending bytes, and returns
// ok=false rather than an error the caller must handle specially.
func (d *FrameDecoder) Decode(buf []byte) (dg Datagram, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.NumDropped++
			d.log.Debug("panic recovered while decoding frame", zap.Any("recover", r), zap.String("dump", spew.Sdump(buf)))
			ok = false
		}
	}()

	link, err := DecodeLink(buf, d.log)
	if err != nil {
		d.dropf(buf, err)
		return Datagram{}, false
	}

	net, err := DecodeNetwork(link.EtherType, link.Payload)
	if err != nil {
		d.dropf(buf, err)
		return Datagram{}, false
	}

	dg.VLANID = link.VLANID
	dg.HasVLAN = link.HasVLAN
	dg.Tuple.Protocol = net.Protocol
	dg.Tuple.SrcIP = net.SrcIP.String()
	dg.Tuple.DstIP = net.DstIP.String()

	switch net.Protocol {
	case ProtoUDP:
		udp, err := DecodeUDP(net.Payload)
		if err != nil {
			d.dropf(buf, err)
			return Datagram{}, false
		}
		dg.UDP = &udp
		dg.Tuple.SrcPort = udp.SrcPort
		dg.Tuple.DstPort = udp.DstPort
	case ProtoTCP:
		tcp, err := DecodeTCP(net.Payload)
		if err != nil {
			d.dropf(buf, err)
			return Datagram{}, false
		}
		dg.TCP = &tcp
		dg.Tuple.SrcPort = tcp.SrcPort
		dg.Tuple.DstPort = tcp.DstPort
	default:
		d.dropf(buf, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "unsupported transport protocol"))
		return Datagram{}, false
	}

	d.NumDecoded++
	return dg, true
}

func (d *FrameDecoder) dropf(buf []byte, err error) {
	d.NumDropped++
	d.log.Debug("dropping frame", zap.Error(err), zap.String("dump", spew.Sdump(buf)))
}
