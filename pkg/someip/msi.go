package someip

import "github.com/AmnesiaBeing/someip-parser/pkg/someiperr"

// MSI service/method identify the multi-service-indication container.
const (
	MSIServiceID = 0xFFFF
	MSIMethodID  = 0x8101
)

// IsMSIPacket reports whether h identifies an MSI container.
func IsMSIPacket(h Header) bool {
	return h.ServiceID == MSIServiceID && h.MethodID == MSIMethodID
}

// SplitMSI iterates the embedded SomeIP messages packed into an MSI
// container's payload. Each embedded message's wire size is its header's
// Length plus 8 (the bytes preceding Length). Stops when fewer than
// HeaderLen bytes remain; trailing bytes are reported via the bool return
// but are not an error. A claimed Length exceeding the remaining bytes is a
// format error for the whole container.
func SplitMSI(body []byte) ([]Header, [][]byte, bool, error) {
	var headers []Header
	var payloads [][]byte

	off := 0
	for len(body)-off >= HeaderLen {
		h, err := DecodeHeader(body[off:])
		if err != nil {
			return nil, nil, false, err
		}

		// embedded message size = length + 8 (total wire size, header included).
		msgSize := int(h.Length) + 8
		if off+msgSize > len(body) {
			return nil, nil, false, someiperr.Wrap(someiperr.ErrInvalidPacketFormat, "msi embedded message length overruns container")
		}

		payload, err := SlicePayload(h, body[off:off+msgSize])
		if err != nil {
			return nil, nil, false, err
		}

		headers = append(headers, h)
		payloads = append(payloads, payload)
		off += msgSize
	}

	trailing := off < len(body)
	return headers, payloads, trailing, nil
}
