package someip

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// SD service/method identify the service-discovery sub-protocol.
const (
	SDServiceID = 0xFFFF
	SDMethodID  = 0x8100
)

// EntryType is the tagged variant over an SD entry's type byte.
type EntryType uint8

const (
	EntryFindService            EntryType = 0x00
	EntryOfferService           EntryType = 0x01
	EntrySubscribeEventgroup    EntryType = 0x06
	EntrySubscribeEventgroupAck EntryType = 0x07
)

// OptionType is the tagged variant over an SD option's type byte.
type OptionType uint8

const (
	OptionConfiguration OptionType = 0x01
	OptionLoadBalancing OptionType = 0x02
	OptionIPv4Endpoint  OptionType = 0x04
	OptionIPv6Endpoint  OptionType = 0x06
	OptionIPv4Multicast OptionType = 0x14
	OptionIPv6Multicast OptionType = 0x16
	OptionIPv4SDEndpoint OptionType = 0x24
	OptionIPv6SDEndpoint OptionType = 0x26
)

// TransportProto names the transport byte carried in endpoint-shaped
// options.
type TransportProto uint8

const (
	TransportTCP     TransportProto = 0x06
	TransportUDP     TransportProto = 0x11
)

func (t TransportProto) String() string {
	switch t {
	case TransportTCP:
		return "TCP"
	case TransportUDP:
		return "UDP"
	default:
		return unknownHex(uint8(t))
	}
}

// Entry is one 16-byte SD entry.
type Entry struct {
	Type              EntryType
	FirstOptionsIndex uint8
	SecondOptionsIndex uint8
	FirstOptionsCount uint8
	SecondOptionsCount uint8
	ServiceID         uint16
	InstanceID        uint16
	MajorVersion      uint8
	TTL               uint32 // u24 on the wire

	MinorVersion uint32 // FindService/OfferService only
	EventgroupID uint16 // Subscribe*/Ack only
	AckReturnCode uint8 // SubscribeEventgroupAck only
}

// Option is one SD option. Body shape depends on Type; Items holds the
// Configuration string list, and IP/Transport/Port are populated for the
// endpoint-shaped option types.
type Option struct {
	Type      OptionType
	Items     []string // Configuration
	IP        net.IP   // Endpoint/Multicast/SD-Endpoint
	Transport TransportProto
	Port      uint16
}

// Packet is a fully parsed SD packet: the outer SomeIP header plus flags,
// entries and options.
type Packet struct {
	Header                   Header
	Reboot                   bool
	Unicast                  bool
	ExplicitInitialDataControl bool
	Entries                  []Entry
	Options                  []Option
}

// IsSDPacket reports whether h/srcPort/dstPort/sdPort identify an SD packet:
// service=0xFFFF, method=0x8100, and either port equals the configured SD
// port.
func IsSDPacket(h Header, srcPort, dstPort, sdPort uint16) bool {
	return h.ServiceID == SDServiceID && h.MethodID == SDMethodID &&
		(srcPort == sdPort || dstPort == sdPort)
}

// ParseSD parses the SD body following the 16-byte SomeIP header: a flags
// byte, 3 reserved bytes, a u32 entries-length, entries until that length
// is consumed (each 16 bytes, or 17 for SubscribeEventgroupAck), a u32
// options-length, then options until that length is consumed.
func ParseSD(h Header, body []byte) (Packet, error) {
	if len(body) < 8 {
		return Packet{}, someiperr.Wrapf(someiperr.ErrInvalidPacketFormat, "sd body needs 8 bytes, got %d", len(body))
	}

	flags := body[0]
	pkt := Packet{
		Header:                     h,
		Reboot:                     flags&0x80 != 0,
		Unicast:                    flags&0x40 != 0,
		ExplicitInitialDataControl: flags&0x20 != 0,
	}

	entriesLen := binary.BigEndian.Uint32(body[4:8])
	off := 8
	if off+int(entriesLen) > len(body) {
		return Packet{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd entries length overruns body")
	}

	entriesEnd := 8 + int(entriesLen)
	for off < entriesEnd {
		e, width, err := parseEntry(body[off:entriesEnd])
		if err != nil {
			return Packet{}, err
		}
		pkt.Entries = append(pkt.Entries, e)
		off += width
	}

	if off+4 > len(body) {
		return Packet{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd missing options length")
	}
	optionsLen := binary.BigEndian.Uint32(body[off : off+4])
	off += 4

	if off+int(optionsLen) > len(body) {
		return Packet{}, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd options length overruns body")
	}

	end := off + int(optionsLen)
	for off < end {
		opt, consumed, err := parseOption(body[off:end])
		if err != nil {
			return Packet{}, err
		}
		pkt.Options = append(pkt.Options, opt)
		off += consumed
	}

	return pkt, nil
}

// parseEntry decodes one SD entry from the front of b and returns the
// number of bytes it consumed: 16 for every entry type except
// SubscribeEventgroupAck, which carries a trailing u8 return code (spec.md
// §4.2; confirmed against sd_parser.rs's 0x07 case) and so consumes 17.
func parseEntry(b []byte) (Entry, int, error) {
	if len(b) < 16 {
		return Entry{}, 0, someiperr.Wrapf(someiperr.ErrMissingField, "sd entry needs 16 bytes, got %d", len(b))
	}

	e := Entry{
		Type:               EntryType(b[0]),
		FirstOptionsIndex:  b[1],
		SecondOptionsIndex: b[2],
		FirstOptionsCount:  b[3] & 0x0F,
		SecondOptionsCount: b[3] >> 4,
		ServiceID:          binary.BigEndian.Uint16(b[4:6]),
		InstanceID:         binary.BigEndian.Uint16(b[6:8]),
		MajorVersion:       b[8],
		TTL:                uint32(b[9])<<16 | uint32(b[10])<<8 | uint32(b[11]),
	}

	width := 16

	switch e.Type {
	case EntryFindService, EntryOfferService:
		e.MinorVersion = binary.BigEndian.Uint32(b[12:16])
	case EntrySubscribeEventgroup:
		e.EventgroupID = binary.BigEndian.Uint16(b[14:16])
	case EntrySubscribeEventgroupAck:
		e.EventgroupID = binary.BigEndian.Uint16(b[14:16])
		width = 17
		if len(b) < width {
			return Entry{}, 0, someiperr.Wrapf(someiperr.ErrMissingField, "sd ack entry needs %d bytes, got %d", width, len(b))
		}
		e.AckReturnCode = b[16]
	}

	return e, width, nil
}

func parseOption(b []byte) (Option, int, error) {
	if len(b) < 4 {
		return Option{}, 0, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd option header truncated")
	}

	bodyLen := int(binary.BigEndian.Uint16(b[0:2]))
	optType := OptionType(b[2])
	// Wire layout: u16 length (of body after these 4 header bytes), u8 type, u8 reserved.
	total := 4 + bodyLen
	if total > len(b) {
		return Option{}, 0, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd option body overruns")
	}
	body := b[4:total]

	opt := Option{Type: optType}

	switch optType {
	case OptionConfiguration:
		pos := 0
		for pos < len(body) {
			if pos+1 > len(body) {
				break
			}
			itemLen := int(body[pos])
			pos++
			if pos+itemLen > len(body) {
				break
			}
			opt.Items = append(opt.Items, string(body[pos:pos+itemLen]))
			pos += itemLen
		}
	case OptionIPv4Endpoint, OptionIPv4Multicast, OptionIPv4SDEndpoint:
		if len(body) < 4+1+2 {
			return Option{}, 0, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd ipv4 option truncated")
		}
		opt.IP = net.IP(body[0:4])
		opt.Transport = TransportProto(body[4])
		opt.Port = binary.BigEndian.Uint16(body[5:7])
	case OptionIPv6Endpoint, OptionIPv6Multicast, OptionIPv6SDEndpoint:
		if len(body) < 16+1+2 {
			return Option{}, 0, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "sd ipv6 option truncated")
		}
		opt.IP = net.IP(body[0:16])
		opt.Transport = TransportProto(body[16])
		opt.Port = binary.BigEndian.Uint16(body[17:19])
	case OptionLoadBalancing:
		// priority/weight body, no ports to learn; opaque otherwise.
	}

	return opt, total, nil
}

// isEndpointShaped reports whether an option type carries a learnable port.
func isEndpointShaped(t OptionType) bool {
	switch t {
	case OptionIPv4Endpoint, OptionIPv6Endpoint, OptionIPv4Multicast, OptionIPv6Multicast, OptionIPv4SDEndpoint, OptionIPv6SDEndpoint:
		return true
	default:
		return false
	}
}

// KnownPorts is the process-wide, monotonically-growing set of ports
// treated as SomeIP endpoints. It has a single owner (the orchestrator) but
// exposes its own mutex since matrix lookups and test harnesses may read it
// concurrently with the run.
type KnownPorts struct {
	mu    sync.Mutex
	ports map[uint16]struct{}
}

// NewKnownPorts seeds the set with the configured SD port.
func NewKnownPorts(sdPort uint16) *KnownPorts {
	kp := &KnownPorts{ports: make(map[uint16]struct{})}
	kp.ports[sdPort] = struct{}{}
	return kp
}

// Contains reports whether port is currently accepted.
func (kp *KnownPorts) Contains(port uint16) bool {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	_, ok := kp.ports[port]
	return ok
}

// Learn unions every endpoint-shaped option's port from pkt into the set.
func (kp *KnownPorts) Learn(pkt Packet) {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	for _, opt := range pkt.Options {
		if isEndpointShaped(opt.Type) {
			kp.ports[opt.Port] = struct{}{}
		}
	}
}

// Size returns the number of known ports.
func (kp *KnownPorts) Size() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.ports)
}
