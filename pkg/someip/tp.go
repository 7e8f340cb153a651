package someip

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

var tpLog = zap.NewNop()

// SetTPLogger installs the logger used by the TP reassembler.
func SetTPLogger(l *zap.Logger) { tpLog = l }

// TPHeader is the 3-or-4-byte fragment-info header following a TP-flagged
// SomeIP header.
type TPHeader struct {
	IsFirst bool
	IsLast  bool
	Offset  uint32
}

// DecodeTPHeader parses the fragment-info bytes immediately following a
// TP-flagged SomeIP header. IsFirst is bit 7 of b[0], IsLast is bit 6.
// When IsFirst, the offset is the remaining 30 bits packed into 3 bytes
// (b0&0x3F)<<16 | b1<<8 | b2; otherwise it is the full 32-bit value of
// b0..b3. Fragment payload begins at byte 3 for first fragments, byte 4 for
// subsequent ones.
func DecodeTPHeader(b []byte) (TPHeader, int, error) {
	if len(b) < 4 {
		return TPHeader{}, 0, someiperr.Wrap(someiperr.ErrTPSegment, "tp header truncated")
	}

	h := TPHeader{
		IsFirst: b[0]&0x80 != 0,
		IsLast:  b[0]&0x40 != 0,
	}

	if h.IsFirst {
		h.Offset = uint32(b[0]&0x3F)<<16 | uint32(b[1])<<8 | uint32(b[2])
		return h, 3, nil
	}

	if len(b) < 4 {
		return TPHeader{}, 0, someiperr.Wrap(someiperr.ErrTPSegment, "tp header truncated")
	}
	h.Offset = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return h, 4, nil
}

type tpFragment struct {
	offset uint32
	data   []byte
}

// tpPending is the reassembly state for one (service, client, session) key.
type tpPending struct {
	firstHeader Header
	segments    map[uint32][]byte
	expected    uint32
	totalSize   uint32
	haveTotal   bool
	lastUpdate  time.Time
}

// TPReassembler merges out-of-order SomeIP-TP fragments keyed by
// (service_id, client_id, session_id).
type TPReassembler struct {
	pending map[Key]*tpPending
	timeout time.Duration
}

// NewTPReassembler builds a reassembler that expires pending keys whose
// last-updated time exceeds timeout.
func NewTPReassembler(timeout time.Duration) *TPReassembler {
	return &TPReassembler{
		pending: make(map[Key]*tpPending),
		timeout: timeout,
	}
}

// Admit feeds one TP-flagged UDP datagram's SomeIP header and trailing
// bytes (the TP header plus fragment payload, i.e. buf[HeaderLen:]) into
// the reassembler. When the fragment set for this key closes with no gaps
// it returns the first fragment's header, the assembled payload and
// ok=true; ok is false otherwise.
func (r *TPReassembler) Admit(h Header, tail []byte, now time.Time) (Header, []byte, bool, error) {
	tp, consumed, err := DecodeTPHeader(tail)
	if err != nil {
		return Header{}, nil, false, err
	}
	fragData := tail[consumed:]

	r.expire(now)

	key := KeyOf(h)

	if tp.IsFirst {
		if tp.IsLast {
			// single fragment that is both first and last: emit immediately,
			// no state allocated.
			return h, fragData, true, nil
		}

		p := &tpPending{
			firstHeader: h,
			segments:    map[uint32][]byte{0: fragData},
			expected:    uint32(len(fragData)),
			totalSize:   uint32(h.PayloadLen()),
			lastUpdate:  now,
		}
		r.pending[key] = p
		return Header{}, nil, false, nil
	}

	p, ok := r.pending[key]
	if !ok {
		// non-first fragment with no prior state: drop silently.
		return Header{}, nil, false, nil
	}

	p.lastUpdate = now

	p.segments[tp.Offset] = fragData
	if tp.Offset == p.expected {
		p.expected += uint32(len(fragData))
		// drain any out-of-order segments already buffered that are now
		// contiguous with the advancing expected offset.
		for {
			seg, ok := p.segments[p.expected]
			if !ok {
				break
			}
			p.expected += uint32(len(seg))
		}
	}

	if tp.IsLast {
		p.totalSize = tp.Offset + uint32(len(fragData))
		p.haveTotal = true
	}

	if p.haveTotal && p.expected >= p.totalSize {
		return r.emit(key, p)
	}

	return Header{}, nil, false, nil
}

func (r *TPReassembler) emit(key Key, p *tpPending) (Header, []byte, bool, error) {
	offsets := make([]uint32, 0, len(p.segments))
	for off := range p.segments {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	buf := make([]byte, p.totalSize)
	for _, off := range offsets {
		seg := p.segments[off]
		if int(off)+len(seg) > len(buf) {
			delete(r.pending, key)
			return Header{}, nil, false, someiperr.Wrap(someiperr.ErrTPSegment, "tp fragment exceeds total size")
		}
		copy(buf[off:], seg)
	}

	delete(r.pending, key)
	return p.firstHeader, buf, true, nil
}

// expire evicts pending keys whose last-updated time is older than the
// configured timeout. Called on every admission.
func (r *TPReassembler) expire(now time.Time) {
	if r.timeout <= 0 {
		return
	}
	for key, p := range r.pending {
		if now.Sub(p.lastUpdate) > r.timeout {
			tpLog.Debug("expiring tp reassembly", zap.Uint16("service", key.ServiceID), zap.Uint16("client", key.ClientID), zap.Uint16("session", key.SessionID))
			delete(r.pending, key)
		}
	}
}

// Pending returns the number of in-flight reassembly keys, for metrics.
func (r *TPReassembler) Pending() int {
	return len(r.pending)
}
