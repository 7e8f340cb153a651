package someip

import "testing"

func TestSplitMSI(t *testing.T) {
	msg1 := EncodeHeader(Header{ServiceID: 1, MethodID: 1, Length: 10, ClientID: 1, SessionID: 1, MessageType: MessageTypeNotification, RawMessageType: 0x02})
	msg1 = append(msg1, []byte{0xAA, 0xBB}...)

	msg2 := EncodeHeader(Header{ServiceID: 2, MethodID: 2, Length: 9, ClientID: 2, SessionID: 2, MessageType: MessageTypeNotification, RawMessageType: 0x02})
	msg2 = append(msg2, []byte{0xCC}...)

	body := append(append([]byte{}, msg1...), msg2...)

	headers, payloads, trailing, err := SplitMSI(body)
	if err != nil {
		t.Fatalf("SplitMSI: %v", err)
	}
	if trailing {
		t.Fatal("expected no trailing bytes")
	}
	if len(headers) != 2 {
		t.Fatalf("got %d embedded headers, want 2", len(headers))
	}
	if headers[0].ServiceID != 1 || headers[1].ServiceID != 2 {
		t.Fatalf("headers = %+v", headers)
	}
	if len(payloads[0]) != 2 || len(payloads[1]) != 1 {
		t.Fatalf("payload lengths = %d, %d", len(payloads[0]), len(payloads[1]))
	}
}

func TestSplitMSITrailingBytes(t *testing.T) {
	body := []byte{1, 2, 3}
	headers, _, trailing, err := SplitMSI(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(headers) != 0 {
		t.Fatal("expected no complete headers")
	}
	if !trailing {
		t.Fatal("expected trailing bytes reported")
	}
}

func TestSplitMSIOverrunIsError(t *testing.T) {
	bad := EncodeHeader(Header{Length: 0xFFFF})
	_, _, _, err := SplitMSI(bad)
	if err == nil {
		t.Fatal("expected error when declared length overruns container")
	}
}

func TestIsMSIPacket(t *testing.T) {
	if !IsMSIPacket(Header{ServiceID: MSIServiceID, MethodID: MSIMethodID}) {
		t.Fatal("expected MSI match")
	}
	if IsMSIPacket(Header{ServiceID: 1, MethodID: MSIMethodID}) {
		t.Fatal("expected no match for non-MSI service id")
	}
}
