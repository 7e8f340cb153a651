/*
 * Stream identity hashing, grounded on the connection-UID convention from
 * netcap's decoder/stream/saveFile.go (cryptoutils.MD5Data over identifying
 * bytes, hex-encoded) and decoder/packet/connection.go's flow-hash keying.
 */

package tcpstream

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/dreadl0ck/cryptoutils"
)

// FlowKey identifies one directional TCP stream by its four-tuple.
type FlowKey struct {
	SrcIP   string
	SrcPort uint16
	DstIP   string
	DstPort uint16
}

// String renders a stable identifier for log correlation, hashing the
// tuple with cryptoutils.MD5Data the way saveFile.go hashes carved bodies.
func (k FlowKey) String() string {
	buf := make([]byte, 0, len(k.SrcIP)+len(k.DstIP)+4)
	buf = append(buf, []byte(k.SrcIP)...)
	buf = appendUint16(buf, k.SrcPort)
	buf = append(buf, []byte(k.DstIP)...)
	buf = appendUint16(buf, k.DstPort)

	sum := cryptoutils.MD5Data(buf)
	return hex.EncodeToString(sum)
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
