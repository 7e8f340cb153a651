// Package someip implements the SomeIP wire format: the fixed header,
// service-discovery parsing and port learning, TP fragment reassembly, MSI
// container splitting, and request/response session pairing.
package someip

import (
	"encoding/binary"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// HeaderLen is the size in bytes of the fixed SomeIP header.
const HeaderLen = 16

// TPFlag is bit 0x20 of the message-type byte, independently flagging
// SomeIP-TP fragmentation.
const TPFlag = 0x20

// MessageType is a closed tagged variant over the wire message-type byte.
// Unknown preserves any code that isn't one of the named variants.
type MessageType uint8

const (
	MessageTypeRequest             MessageType = 0x00
	MessageTypeRequestNoReturn     MessageType = 0x01
	MessageTypeNotification        MessageType = 0x02
	MessageTypeRequestAck          MessageType = 0x40
	MessageTypeRequestNoReturnAck  MessageType = 0x41
	MessageTypeNotificationAck     MessageType = 0x42
	MessageTypeResponse            MessageType = 0x80
	MessageTypeError               MessageType = 0x81
	MessageTypeResponseAck         MessageType = 0xC0
	MessageTypeErrorAck            MessageType = 0xC1
)

// String renders the variant name, or a hex form for unrecognized codes.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeRequestNoReturn:
		return "REQUEST_NO_RETURN"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeRequestAck:
		return "REQUEST_ACK"
	case MessageTypeRequestNoReturnAck:
		return "REQUEST_NO_RETURN_ACK"
	case MessageTypeNotificationAck:
		return "NOTIFICATION_ACK"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeError:
		return "ERROR"
	case MessageTypeResponseAck:
		return "RESPONSE_ACK"
	case MessageTypeErrorAck:
		return "ERROR_ACK"
	default:
		return unknownHex(uint8(m))
	}
}

// baseWithoutTP returns m with the TP fragmentation bit cleared. Callers
// that need the TP bit must consult the raw byte (Header.IsTP) instead.
func (m MessageType) baseWithoutTP() MessageType {
	return m &^ TPFlag
}

// IsRequestLike reports whether this message type is routed through the
// session manager (request/response/error family), as opposed to
// notifications and ack variants which bypass it.
func (m MessageType) IsRequestLike() bool {
	switch m.baseWithoutTP() {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeError:
		return true
	default:
		return false
	}
}

// IsResponseLike reports whether this message type may complete a pending
// session (Response or Error).
func (m MessageType) IsResponseLike() bool {
	switch m.baseWithoutTP() {
	case MessageTypeResponse, MessageTypeError:
		return true
	default:
		return false
	}
}

// ReturnCode is a closed tagged variant over the wire return-code byte.
type ReturnCode uint8

const (
	ReturnCodeOk                    ReturnCode = 0x00
	ReturnCodeNotOk                 ReturnCode = 0x01
	ReturnCodeUnknownService        ReturnCode = 0x02
	ReturnCodeUnknownMethod         ReturnCode = 0x03
	ReturnCodeNotReady              ReturnCode = 0x04
	ReturnCodeNotReachable          ReturnCode = 0x05
	ReturnCodeTimeout               ReturnCode = 0x06
	ReturnCodeWrongProtocolVersion  ReturnCode = 0x07
	ReturnCodeWrongInterfaceVersion ReturnCode = 0x08
	ReturnCodeMalformedMessage      ReturnCode = 0x09
	ReturnCodeWrongMessageType      ReturnCode = 0x0A
)

// String renders the variant name, or a hex form for unrecognized codes.
func (r ReturnCode) String() string {
	switch r {
	case ReturnCodeOk:
		return "E_OK"
	case ReturnCodeNotOk:
		return "E_NOT_OK"
	case ReturnCodeUnknownService:
		return "E_UNKNOWN_SERVICE"
	case ReturnCodeUnknownMethod:
		return "E_UNKNOWN_METHOD"
	case ReturnCodeNotReady:
		return "E_NOT_READY"
	case ReturnCodeNotReachable:
		return "E_NOT_REACHABLE"
	case ReturnCodeTimeout:
		return "E_TIMEOUT"
	case ReturnCodeWrongProtocolVersion:
		return "E_WRONG_PROTOCOL_VERSION"
	case ReturnCodeWrongInterfaceVersion:
		return "E_WRONG_INTERFACE_VERSION"
	case ReturnCodeMalformedMessage:
		return "E_MALFORMED_MESSAGE"
	case ReturnCodeWrongMessageType:
		return "E_WRONG_MESSAGE_TYPE"
	default:
		return unknownHex(uint8(r))
	}
}

func unknownHex(b uint8) string {
	const hextable = "0123456789ABCDEF"
	return "UNKNOWN(0x" + string([]byte{hextable[b>>4], hextable[b&0xF]}) + ")"
}

// Header is the fixed 16-byte SomeIP header, all fields big-endian on the
// wire. Length counts the payload plus the 8 header bytes following it
// (ClientID..ReturnCode), so the wire payload is exactly Length-8 bytes.
type Header struct {
	ServiceID        uint16
	MethodID         uint16
	Length           uint32
	ClientID         uint16
	SessionID        uint16
	ProtocolVersion  uint8
	InterfaceVersion uint8
	MessageType      MessageType
	ReturnCode       ReturnCode

	// RawMessageType is the undecoded message-type byte, retained because
	// the TP fragmentation flag (bit 0x20) is independent of the
	// MessageType variant and must survive even when MessageType strips it.
	RawMessageType uint8
}

// IsTP reports whether the fragmentation bit was set on the wire.
func (h Header) IsTP() bool {
	return h.RawMessageType&TPFlag != 0
}

// PayloadLen returns the number of payload bytes this header bounds.
func (h Header) PayloadLen() int {
	if h.Length < 8 {
		return 0
	}
	return int(h.Length) - 8
}

// DecodeHeader parses a 16-byte SomeIP header from buf[0:16]. buf must be
// at least HeaderLen bytes; shorter input is InvalidPacketFormat.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, someiperr.Wrapf(someiperr.ErrInvalidPacketFormat, "someip header needs %d bytes, got %d", HeaderLen, len(buf))
	}

	raw := buf[14]

	return Header{
		ServiceID:        binary.BigEndian.Uint16(buf[0:2]),
		MethodID:         binary.BigEndian.Uint16(buf[2:4]),
		Length:           binary.BigEndian.Uint32(buf[4:8]),
		ClientID:         binary.BigEndian.Uint16(buf[8:10]),
		SessionID:        binary.BigEndian.Uint16(buf[10:12]),
		ProtocolVersion:  buf[12],
		InterfaceVersion: buf[13],
		MessageType:      MessageType(raw &^ TPFlag),
		RawMessageType:   raw,
		ReturnCode:       ReturnCode(buf[15]),
	}, nil
}

// EncodeHeader renders h back to its 16-byte wire form.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], h.ServiceID)
	binary.BigEndian.PutUint16(buf[2:4], h.MethodID)
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	binary.BigEndian.PutUint16(buf[8:10], h.ClientID)
	binary.BigEndian.PutUint16(buf[10:12], h.SessionID)
	buf[12] = h.ProtocolVersion
	buf[13] = h.InterfaceVersion
	buf[14] = h.RawMessageType
	buf[15] = uint8(h.ReturnCode)
	return buf
}

// Key identifies a session by (service, client, session) triple.
type Key struct {
	ServiceID uint16
	ClientID  uint16
	SessionID uint16
}

// KeyOf extracts the session key from a header.
func KeyOf(h Header) Key {
	return Key{ServiceID: h.ServiceID, ClientID: h.ClientID, SessionID: h.SessionID}
}

// ErrShortPayload is returned when a header's declared Length exceeds the
// bytes actually available. Its root cause is someiperr.ErrInvalidPacketFormat.
var ErrShortPayload = someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "declared length exceeds available bytes")

// SlicePayload returns buf's payload region per h.Length, erroring if buf is
// shorter than the header demands.
func SlicePayload(h Header, buf []byte) ([]byte, error) {
	need := HeaderLen + h.PayloadLen()
	if len(buf) < need {
		return nil, someiperr.Wrap(ErrShortPayload, "someip payload slice")
	}
	return buf[HeaderLen:need], nil
}
