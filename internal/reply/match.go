package reply

import (
	"sync"

	"github.com/goferhq/gofer/internal/envelope"
)

// MatchStore correlates envelopes arriving on a shared reply queue back
// to the serial number a synchronous caller is blocked waiting on. A
// request's waiter channel is buffered to 2: one slot for its started
// status, one for its final reply.
type MatchStore struct {
	mu      sync.Mutex
	waiters map[string]chan *envelope.Envelope
}

// NewMatchStore builds an empty store.
func NewMatchStore() *MatchStore {
	return &MatchStore{waiters: make(map[string]chan *envelope.Envelope)}
}

// Register opens a waiter for sn. Callers must Cancel once done, win or
// lose, to release the entry.
func (m *MatchStore) Register(sn string) <-chan *envelope.Envelope {
	ch := make(chan *envelope.Envelope, 2)
	m.mu.Lock()
	m.waiters[sn] = ch
	m.mu.Unlock()
	return ch
}

// Cancel releases sn's waiter. Safe to call more than once.
func (m *MatchStore) Cancel(sn string) {
	m.mu.Lock()
	delete(m.waiters, sn)
	m.mu.Unlock()
}

// Deliver routes env to its sn's waiter if one is registered, reporting
// whether a waiter accepted it. A full channel (the reader is not
// keeping up) drops the envelope rather than blocking the consumer
// loop for every other in-flight request.
func (m *MatchStore) Deliver(env *envelope.Envelope) bool {
	m.mu.Lock()
	ch, ok := m.waiters[env.SN()]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- env:
		return true
	default:
		return false
	}
}
