package decoder

import (
	"encoding/binary"
	"testing"
)

func TestFrameDecoderEndToEndUDP(t *testing.T) {
	eth := make([]byte, 14)
	eth[0] = 0x02 // non-zero destination MAC, so the SLL prefix test does not match
	eth[12], eth[13] = 0x08, 0x00

	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:2], 30490)
	binary.BigEndian.PutUint16(udp[2:4], 30491)
	binary.BigEndian.PutUint16(udp[4:6], 8+4)
	udp = append(udp, []byte{1, 2, 3, 4}...)

	// rebuild ip header with correct total length including udp
	full := buildIPv4(ProtoUDP, udp)

	frame := append(append([]byte{}, eth...), full...)

	fd := NewFrameDecoder(nil)
	dg, ok := fd.Decode(frame)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if dg.UDP == nil {
		t.Fatal("expected udp segment")
	}
	if dg.Tuple.SrcPort != 30490 || dg.Tuple.DstPort != 30491 {
		t.Fatalf("ports = %d -> %d", dg.Tuple.SrcPort, dg.Tuple.DstPort)
	}
	if fd.NumDecoded != 1 {
		t.Fatalf("NumDecoded = %d, want 1", fd.NumDecoded)
	}
}

func TestFrameDecoderDropsShortGarbage(t *testing.T) {
	fd := NewFrameDecoder(nil)
	_, ok := fd.Decode([]byte{0x01, 0x02, 0x03})
	if ok {
		t.Fatal("expected decode failure for short garbage input")
	}
	if fd.NumDropped != 1 {
		t.Fatalf("NumDropped = %d, want 1", fd.NumDropped)
	}
}
