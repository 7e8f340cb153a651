package decoder

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

func buildIPv4(protocol uint8, payload []byte) []byte {
	hdr := make([]byte, 20)
	hdr[0] = 0x45 // version 4, IHL 5 (20 bytes)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(20+len(payload)))
	hdr[9] = protocol
	copy(hdr[12:16], []byte{10, 0, 0, 1})
	copy(hdr[16:20], []byte{10, 0, 0, 2})
	return append(hdr, payload...)
}

func TestDecodeIPv4(t *testing.T) {
	buf := buildIPv4(ProtoUDP, []byte{1, 2, 3})

	nf, err := DecodeNetwork(EtherTypeIPv4, buf)
	if err != nil {
		t.Fatal(err)
	}
	if nf.Protocol != ProtoUDP {
		t.Fatalf("protocol = %d", nf.Protocol)
	}
	if nf.SrcIP.String() != "10.0.0.1" || nf.DstIP.String() != "10.0.0.2" {
		t.Fatalf("ips = %s -> %s", nf.SrcIP, nf.DstIP)
	}
	if !bytes.Equal(nf.Payload, []byte{1, 2, 3}) {
		t.Fatal("payload mismatch")
	}
}

func TestDecodeIPv4TruncatedIsError(t *testing.T) {
	buf := buildIPv4(ProtoUDP, []byte{1, 2, 3})
	_, err := DecodeNetwork(EtherTypeIPv4, buf[:10])
	if err == nil {
		t.Fatal("expected error for truncated ipv4 header")
	}
}

func TestDecodeUnsupportedEtherType(t *testing.T) {
	_, err := DecodeNetwork(0x1234, []byte{0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected error for unsupported ethertype")
	}
}

func TestDecodeIPv6(t *testing.T) {
	hdr := make([]byte, 40)
	hdr[0] = 0x60
	payload := []byte{9, 9}
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(payload)))
	hdr[6] = ProtoTCP
	copy(hdr[8:24], net.ParseIP("fe80::1").To16())
	copy(hdr[24:40], net.ParseIP("fe80::2").To16())
	buf := append(hdr, payload...)

	nf, err := DecodeNetwork(EtherTypeIPv6, buf)
	if err != nil {
		t.Fatal(err)
	}
	if nf.Protocol != ProtoTCP {
		t.Fatalf("protocol = %d", nf.Protocol)
	}
	if !bytes.Equal(nf.Payload, payload) {
		t.Fatal("payload mismatch")
	}
}
