/*
 * Sequence-ordered TCP flow reassembly. Adapted from netcap's
 * decoder/stream/tcpConnection.go idiom (a mutex-guarded map of per-flow
 * state, a package-level stats struct, an end-of-run summary table) but
 * replaces gopacket's reassembly.Assembler with the admission rules this
 * analyzer needs, and replaces the original's raw-pointer aliasing with a
 * two-phase lookup: resolve the flow key under the map lock, then mutate
 * the owned *flow value without re-entering the map.
 */

package tcpstream

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/evilsocket/islazy/tui"
	"go.uber.org/zap"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

var streamLog = zap.NewNop()

// SetLogger installs the logger used by the reassembler.
func SetLogger(l *zap.Logger) { streamLog = l }

type heldSegment struct {
	seq     uint32
	payload []byte
	arrived time.Time
}

// flow is the reassembly state for one directional four-tuple.
type flow struct {
	key          FlowKey
	expected     uint32
	baselineSet  bool
	hold         []heldSegment // sorted by seq
	closed       bool
	finSeq       uint32
	haveFin      bool
	lastActivity time.Time
	// tail holds bytes emitted upstream but not yet consumed into a
	// complete SomeIP message by the caller's framer; the caller pushes
	// back undrained bytes via SetTail so a message split across two
	// reassembly emissions is not truncated.
	tail []byte
}

// Stats accumulates reassembly counters for the end-of-run summary,
// mirroring the style (not the gopacket-specific fields) of netcap's
// package-level stats struct.
type Stats struct {
	mu sync.Mutex

	FlowsActive    int
	FlowsEvicted   int
	SegmentsHeld   int
	OutOfOrder     int
	Duplicate      int
	BytesEmitted   int64
}

func (s *Stats) incOutOfOrder() { s.mu.Lock(); s.OutOfOrder++; s.mu.Unlock() }
func (s *Stats) incDuplicate()  { s.mu.Lock(); s.Duplicate++; s.mu.Unlock() }
func (s *Stats) addBytes(n int) {
	s.mu.Lock()
	s.BytesEmitted += int64(n)
	s.mu.Unlock()
}

// Reassembler reorders per-connection byte streams by sequence number.
// Single-owner: intended to be driven exclusively by the orchestrator's
// consumer loop, so its internal map needs no locking for correctness —
// the mutex exists only to let Stats/Summary be read from outside that
// loop (e.g. a periodic status line) without racing the detector.
type Reassembler struct {
	mu  sync.Mutex
	flows map[FlowKey]*flow

	capacity       int
	segmentTimeout time.Duration
	connTimeout    time.Duration

	Stats Stats
}

// NewReassembler builds a reassembler bounding live flows at capacity,
// expiring held segments after segmentTimeout and closed-and-idle
// connections after connTimeout.
func NewReassembler(capacity int, segmentTimeout, connTimeout time.Duration) *Reassembler {
	return &Reassembler{
		flows:          make(map[FlowKey]*flow),
		capacity:       capacity,
		segmentTimeout: segmentTimeout,
		connTimeout:    connTimeout,
	}
}

// Admit feeds one TCP segment into the reassembler. It returns the bytes
// newly ready for the caller to frame (the in-order run starting at this
// segment's arrival, including any now-contiguous held segments), or
// ok=false if nothing became available.
func (r *Reassembler) Admit(key FlowKey, seq uint32, syn, fin, rst bool, payload []byte, now time.Time) (out []byte, ok bool) {
	r.mu.Lock()
	f, exists := r.flows[key]
	if !exists {
		if r.capacity > 0 && len(r.flows) >= r.capacity {
			r.evictLRULocked()
		}
		f = &flow{key: key, lastActivity: now}
		r.flows[key] = f
		r.Stats.mu.Lock()
		r.Stats.FlowsActive = len(r.flows)
		r.Stats.mu.Unlock()
	}
	r.mu.Unlock()

	// From here on, f is mutated without re-touching the map: a two-phase
	// lookup instead of holding the map lock across the whole admission.
	f.lastActivity = now

	if rst {
		err := someiperr.Wrapf(someiperr.ErrTCPStream, "flow %s reset, discarding %d held segments", key.String(), len(f.hold))
		streamLog.Debug("tcp stream reset", zap.Error(err))
		f.closed = true
		f.hold = nil
		return nil, false
	}

	if !f.baselineSet {
		f.expected = seq
		f.baselineSet = true
	}

	if syn {
		f.expected = seq + 1
		if fin {
			f.haveFin = true
			f.finSeq = seq + uint32(len(payload)) + 1
			f.closed = true
		}
		return nil, false
	}

	if fin {
		f.haveFin = true
		f.finSeq = seq + uint32(len(payload))
		f.closed = true
	}

	if len(payload) == 0 {
		return nil, false
	}

	switch {
	case seq == f.expected:
		var buf []byte
		buf = append(buf, payload...)
		f.expected += uint32(len(payload))

		for len(f.hold) > 0 && f.hold[0].seq == f.expected {
			h := f.hold[0]
			buf = append(buf, h.payload...)
			f.expected += uint32(len(h.payload))
			f.hold = f.hold[1:]
		}

		r.Stats.addBytes(len(buf))
		return buf, true

	case seq > f.expected:
		r.Stats.incOutOfOrder()
		f.hold = append(f.hold, heldSegment{seq: seq, payload: payload, arrived: now})
		sort.Slice(f.hold, func(i, j int) bool { return f.hold[i].seq < f.hold[j].seq })
		return nil, false

	default: // seq < expected: duplicate or stale retransmit
		r.Stats.incDuplicate()
		return nil, false
	}
}

// SetTail stashes bytes the caller could not yet frame into a complete
// SomeIP message, to be prefixed onto the next emission for this flow.
func (r *Reassembler) SetTail(key FlowKey, tail []byte) {
	r.mu.Lock()
	f, ok := r.flows[key]
	r.mu.Unlock()
	if !ok {
		return
	}
	f.tail = tail
}

// Tail returns any bytes previously stashed via SetTail for key, prefixed
// onto out, clearing the stash.
func (r *Reassembler) Tail(key FlowKey, out []byte) []byte {
	r.mu.Lock()
	f, ok := r.flows[key]
	r.mu.Unlock()
	if !ok || len(f.tail) == 0 {
		return out
	}
	merged := append(append([]byte(nil), f.tail...), out...)
	f.tail = nil
	return merged
}

// evictLRULocked removes the flow with the least-recent activity. Caller
// must hold r.mu.
func (r *Reassembler) evictLRULocked() {
	var lruKey FlowKey
	var lruTime time.Time
	first := true

	for k, f := range r.flows {
		if first || f.lastActivity.Before(lruTime) {
			lruKey = k
			lruTime = f.lastActivity
			first = false
		}
	}

	if !first {
		delete(r.flows, lruKey)
		r.Stats.mu.Lock()
		r.Stats.FlowsEvicted++
		r.Stats.mu.Unlock()
		streamLog.Debug("evicted lru tcp flow", zap.String("flow", lruKey.String()))
	}
}

// Sweep removes closed-and-idle flows (idle beyond connTimeout) and drops
// held segments older than segmentTimeout. Call periodically or once at
// end-of-input.
func (r *Reassembler) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, f := range r.flows {
		if r.segmentTimeout > 0 {
			kept := f.hold[:0]
			for _, h := range f.hold {
				if now.Sub(h.arrived) <= r.segmentTimeout {
					kept = append(kept, h)
				}
			}
			f.hold = kept
		}

		if f.closed && r.connTimeout > 0 && now.Sub(f.lastActivity) > r.connTimeout {
			delete(r.flows, k)
			r.Stats.mu.Lock()
			r.Stats.FlowsActive = len(r.flows)
			r.Stats.mu.Unlock()
		}
	}
}

// StatsSnapshot returns the current flows-active/flows-evicted counts under
// lock, for callers (e.g. periodic metrics updates) that must not reach
// into Stats directly.
func (r *Reassembler) StatsSnapshot() (flowsActive, flowsEvicted int) {
	r.Stats.mu.Lock()
	defer r.Stats.mu.Unlock()
	return r.Stats.FlowsActive, r.Stats.FlowsEvicted
}

// Summary writes the end-of-run statistics table to w, mirroring netcap's
// CleanupReassembly use of tui.Table.
func (r *Reassembler) Summary(w io.Writer) {
	r.Stats.mu.Lock()
	defer r.Stats.mu.Unlock()

	headers := []string{"metric", "value"}
	rows := [][]string{
		{"flows active", itoa(r.Stats.FlowsActive)},
		{"flows evicted", itoa(r.Stats.FlowsEvicted)},
		{"out of order segments", itoa(r.Stats.OutOfOrder)},
		{"duplicate segments", itoa(r.Stats.Duplicate)},
		{"bytes emitted", itoa64(r.Stats.BytesEmitted)},
	}

	tui.Table(w, headers, rows)
}

func itoa(n int) string   { return itoa64(int64(n)) }
func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
