package someip

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{ServiceID: 0x1234, MethodID: 0x0001, Length: 10, ClientID: 0x0001, SessionID: 0x0001, ProtocolVersion: 1, InterfaceVersion: 1, MessageType: MessageTypeRequest, RawMessageType: 0x00, ReturnCode: ReturnCodeOk},
		{ServiceID: 0x1234, MethodID: 0x0001, Length: 10, ClientID: 0x0001, SessionID: 0x0001, ProtocolVersion: 1, InterfaceVersion: 1, MessageType: MessageTypeResponse, RawMessageType: 0x80, ReturnCode: ReturnCodeOk},
		{ServiceID: 0xFFFF, MethodID: 0x8100, Length: 20, ClientID: 0, SessionID: 0, ProtocolVersion: 1, InterfaceVersion: 1, MessageType: MessageTypeNotification, RawMessageType: 0x02, ReturnCode: ReturnCodeOk},
		{ServiceID: 1, MethodID: 2, Length: 8, ClientID: 3, SessionID: 4, ProtocolVersion: 1, InterfaceVersion: 1, MessageType: MessageType(0x55 &^ TPFlag), RawMessageType: 0x55, ReturnCode: ReturnCode(0xEE)},
	}

	for _, want := range cases {
		buf := EncodeHeader(want)
		if len(buf) != HeaderLen {
			t.Fatalf("encoded header length = %d, want %d", len(buf), HeaderLen)
		}

		got, err := DecodeHeader(buf)
		if err != nil {
			t.Fatalf("DecodeHeader: %v", err)
		}

		if got != want {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 15))
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestUnknownMessageTypeString(t *testing.T) {
	m := MessageType(0x77)
	if got := m.String(); got != "UNKNOWN(0x77)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestTPFlagIndependentOfMessageType(t *testing.T) {
	buf := EncodeHeader(Header{RawMessageType: MessageTypeRequest.baseWithoutTP() | TPFlag})
	var expect bytes.Buffer
	expect.Write(buf)

	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !h.IsTP() {
		t.Fatal("expected IsTP true")
	}
	if h.MessageType != MessageTypeRequest {
		t.Fatalf("MessageType = %v, want Request (TP bit should not leak into variant)", h.MessageType)
	}
}

func TestSlicePayload(t *testing.T) {
	h := Header{Length: 10}
	buf := make([]byte, HeaderLen+2)
	payload, err := SlicePayload(h, buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != 2 {
		t.Fatalf("payload len = %d, want 2", len(payload))
	}

	_, err = SlicePayload(h, buf[:HeaderLen])
	if err == nil {
		t.Fatal("expected error when buffer shorter than declared length")
	}
}
