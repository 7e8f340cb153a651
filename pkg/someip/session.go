package someip

import (
	"container/list"
	"time"

	"go.uber.org/zap"
)

var sessionLog = zap.NewNop()

// SetSessionLogger installs the logger used by the session manager.
func SetSessionLogger(l *zap.Logger) { sessionLog = l }

// Pair is a request paired with its (possibly absent) response.
type Pair struct {
	Request  Message
	Response *Message
	Deadline time.Time
}

type pendingEntry struct {
	key     Key
	pair    *Pair
	element *list.Element // element in the eviction queue
}

// SessionManager pairs requests with responses within a bounded time
// window, keyed by (service_id, client_id, session_id), evicting the oldest
// pending pair once the capacity bound is reached.
type SessionManager struct {
	capacity int
	timeout  time.Duration

	pending map[Key]*pendingEntry
	order   *list.List // insertion-ordered queue of Key, front = oldest
}

// NewSessionManager builds a manager bounding pending pairs at capacity and
// expiring them after timeout.
func NewSessionManager(capacity int, timeout time.Duration) *SessionManager {
	return &SessionManager{
		capacity: capacity,
		timeout:  timeout,
		pending:  make(map[Key]*pendingEntry),
		order:    list.New(),
	}
}

// AddRequest inserts a new pending pair for msg's key, evicting the oldest
// pending key first if at capacity. Returns the evicted pair, if any.
func (sm *SessionManager) AddRequest(msg Message, now time.Time) (evicted *Pair) {
	if sm.capacity > 0 && len(sm.pending) >= sm.capacity {
		if front := sm.order.Front(); front != nil {
			oldKey := front.Value.(Key)
			if old, ok := sm.pending[oldKey]; ok {
				evicted = old.pair
				delete(sm.pending, oldKey)
			}
			sm.order.Remove(front)
		}
	}

	pair := &Pair{Request: msg, Deadline: now.Add(sm.timeout)}
	el := sm.order.PushBack(msg.Key())
	sm.pending[msg.Key()] = &pendingEntry{key: msg.Key(), pair: pair, element: el}

	return evicted
}

// AddResponse attaches msg as the response to its key's pending pair. If
// found, returns the completed pair and true. If no matching request
// exists, returns zero value and false (caller should warn and drop).
func (sm *SessionManager) AddResponse(msg Message) (Pair, bool) {
	key := msg.Key()
	entry, ok := sm.pending[key]
	if !ok {
		sessionLog.Warn("response with no matching request", zap.Uint16("service", key.ServiceID), zap.Uint16("client", key.ClientID), zap.Uint16("session", key.SessionID))
		return Pair{}, false
	}

	m := msg
	entry.pair.Response = &m
	sm.order.Remove(entry.element)
	delete(sm.pending, key)

	return *entry.pair, true
}

// Sweep extracts every pending pair whose deadline is at or before now,
// removing them and returning them as orphan requests (no response).
func (sm *SessionManager) Sweep(now time.Time) []Pair {
	var orphans []Pair

	var next *list.Element
	for el := sm.order.Front(); el != nil; el = next {
		next = el.Next()
		key := el.Value.(Key)
		entry, ok := sm.pending[key]
		if !ok {
			sm.order.Remove(el)
			continue
		}
		if !now.Before(entry.pair.Deadline) {
			orphans = append(orphans, *entry.pair)
			delete(sm.pending, key)
			sm.order.Remove(el)
		}
	}

	return orphans
}

// SweepAll extracts every remaining pending pair regardless of deadline,
// for use at orchestrator shutdown.
func (sm *SessionManager) SweepAll() []Pair {
	var orphans []Pair
	for el := sm.order.Front(); el != nil; el = el.Next() {
		key := el.Value.(Key)
		if entry, ok := sm.pending[key]; ok {
			orphans = append(orphans, *entry.pair)
		}
	}
	sm.pending = make(map[Key]*pendingEntry)
	sm.order = list.New()
	return orphans
}

// Pending returns the number of currently pending pairs, for metrics.
func (sm *SessionManager) Pending() int {
	return len(sm.pending)
}
