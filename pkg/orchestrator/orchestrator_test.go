package orchestrator

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AmnesiaBeing/someip-parser/pkg/capture"
	"github.com/AmnesiaBeing/someip-parser/pkg/metrics"
	"github.com/AmnesiaBeing/someip-parser/pkg/someip"
)

func ethIPv4UDP(srcPort, dstPort uint16, someipPayload []byte) []byte {
	eth := make([]byte, 14)
	eth[0] = 0x02 // non-zero destination MAC, so the SLL prefix test does not match
	eth[12], eth[13] = 0x08, 0x00

	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(8+len(someipPayload)))
	udp = append(udp, someipPayload...)

	ip := make([]byte, 20)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(20+len(udp)))
	ip[9] = 17 // UDP
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})
	ip = append(ip, udp...)

	return append(eth, ip...)
}

func someipMsg(h someip.Header, payload []byte) []byte {
	return append(someip.EncodeHeader(h), payload...)
}

func TestOrchestratorPlainRequestResponse(t *testing.T) {
	o := New(Config{
		SDPort:          30490,
		RequestTimeout:  5 * time.Second,
		TPTimeout:       30 * time.Second,
		TCPTimeout:      60 * time.Second,
		SessionCapacity: 16,
		TCPCapacity:     16,
	}, nil, nil)

	reqBuf := someipMsg(someip.Header{ServiceID: 0x1234, MethodID: 1, Length: 10, ClientID: 1, SessionID: 1, MessageType: someip.MessageTypeRequest}, []byte{0xAA, 0xBB})
	respBuf := someipMsg(someip.Header{ServiceID: 0x1234, MethodID: 1, Length: 10, ClientID: 1, SessionID: 1, MessageType: someip.MessageTypeResponse, RawMessageType: uint8(someip.MessageTypeResponse), ReturnCode: someip.ReturnCodeOk}, []byte{0xCC, 0xDD})

	frames := make(chan capture.RawFrame, 2)
	frames <- capture.RawFrame{Timestamp: time.Unix(0, 0), Data: ethIPv4UDP(30490, 30490, reqBuf)}
	frames <- capture.RawFrame{Timestamp: time.Unix(1, 0), Data: ethIPv4UDP(30490, 30490, respBuf)}
	close(frames)

	out := o.Run(frames)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2", len(out))
	}
	if out[0].Header.MessageType != someip.MessageTypeRequest {
		t.Fatalf("first message type = %v, want Request", out[0].Header.MessageType)
	}
	if out[1].Header.MessageType != someip.MessageTypeResponse {
		t.Fatalf("second message type = %v, want Response", out[1].Header.MessageType)
	}
}

func TestOrchestratorSDPortLearning(t *testing.T) {
	o := New(Config{
		SDPort:          30490,
		RequestTimeout:  5 * time.Second,
		TPTimeout:       30 * time.Second,
		TCPTimeout:      60 * time.Second,
		SessionCapacity: 16,
		TCPCapacity:     16,
	}, nil, nil)

	// build an SD packet offering an ipv4 endpoint option with port 50001
	entry := make([]byte, 16)
	entry[0] = 0x01 // OfferService
	binary.BigEndian.PutUint16(entry[4:6], 0x1234)

	optBody := make([]byte, 0, 7)
	optBody = append(optBody, 10, 0, 0, 1) // ip
	optBody = append(optBody, 0x11)        // udp
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, 50001)
	optBody = append(optBody, portBytes...)

	opt := make([]byte, 4+len(optBody))
	binary.BigEndian.PutUint16(opt[0:2], uint16(len(optBody)))
	opt[2] = 0x04 // ipv4 endpoint
	copy(opt[4:], optBody)

	sdBody := make([]byte, 0)
	sdBody = append(sdBody, 0, 0, 0, 0) // flags+reserved
	el := make([]byte, 4)
	binary.BigEndian.PutUint32(el, uint32(len(entry)))
	sdBody = append(sdBody, el...)
	sdBody = append(sdBody, entry...)
	ol := make([]byte, 4)
	binary.BigEndian.PutUint32(ol, uint32(len(opt)))
	sdBody = append(sdBody, ol...)
	sdBody = append(sdBody, opt...)

	sdHeader := someip.Header{ServiceID: someip.SDServiceID, MethodID: someip.SDMethodID, Length: uint32(8 + len(sdBody))}
	sdMsg := someipMsg(sdHeader, sdBody)

	frames := make(chan capture.RawFrame, 1)
	frames <- capture.RawFrame{Timestamp: time.Unix(0, 0), Data: ethIPv4UDP(30490, 30490, sdMsg)}
	close(frames)

	o.Run(frames)

	if !o.knownPorts.Contains(50001) {
		t.Fatal("expected port 50001 to be learned from sd packet")
	}
	if o.knownPorts.Contains(50002) {
		t.Fatal("port 50002 must remain unknown")
	}
}

func ethIPv4TCP(srcPort, dstPort uint16, seq uint32, syn, fin bool, payload []byte) []byte {
	eth := make([]byte, 14)
	eth[0] = 0x02 // non-zero destination MAC, so the SLL prefix test does not match
	eth[12], eth[13] = 0x08, 0x00

	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	var flags uint16
	if syn {
		flags |= 0x0002
	}
	if fin {
		flags |= 0x0001
	}
	binary.BigEndian.PutUint16(tcp[12:14], uint16(5)<<12|flags)
	tcp = append(tcp, payload...)

	ip := make([]byte, 20)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(20+len(tcp)))
	ip[9] = 6 // TCP
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})
	ip = append(ip, tcp...)

	return append(eth, ip...)
}

func TestOrchestratorTCPReassemblyUpdatesMetricsAndSummary(t *testing.T) {
	met := metrics.New()
	o := New(Config{
		SDPort:          30490,
		RequestTimeout:  5 * time.Second,
		TPTimeout:       30 * time.Second,
		TCPTimeout:      60 * time.Second,
		TCPSegTimeout:   30 * time.Second,
		SessionCapacity: 16,
		TCPCapacity:     16,
	}, nil, met)

	reqBuf := someipMsg(someip.Header{ServiceID: 0x1234, MethodID: 1, Length: 10, ClientID: 1, SessionID: 1, MessageType: someip.MessageTypeRequest}, []byte{0xAA, 0xBB})

	// use the sd port itself as the tcp conversation's port so the
	// known-ports gate (seeded with sdPort) admits it without an SD packet.
	frames := make(chan capture.RawFrame, 2)
	frames <- capture.RawFrame{Timestamp: time.Unix(0, 0), Data: ethIPv4TCP(30490, 30490, 1000, true, false, nil)}
	frames <- capture.RawFrame{Timestamp: time.Unix(1, 0), Data: ethIPv4TCP(30490, 30490, 1001, false, false, reqBuf)}
	close(frames)

	out := o.Run(frames)
	if len(out) != 1 || out[0].Header.MessageType != someip.MessageTypeRequest {
		t.Fatalf("expected 1 reassembled request, got %+v", out)
	}

	flowsActive, _ := o.tcp.StatsSnapshot()
	if flowsActive != 1 {
		t.Fatalf("expected 1 active tcp flow, got %d", flowsActive)
	}
	if got := testutil.ToFloat64(met.TCPFlowsActive); got != 1 {
		t.Fatalf("TCPFlowsActive gauge = %v, want 1", got)
	}

	var buf bytes.Buffer
	o.TCPSummary(&buf)
	if !strings.Contains(buf.String(), "flows active") {
		t.Fatalf("expected summary table to mention flows active, got %q", buf.String())
	}
}
