// Package tracker implements the process-wide cancellation registry: a
// mapping from serial number to a cancelled flag, guarded by a single
// mutex so every operation is O(1).
package tracker

import "sync"

// Mirror is the optional durable audit trail a Tracker reports its
// lifecycle events to. *Audit implements this; tests and deployments
// that don't need post-mortem diagnosis can leave it nil.
type Mirror interface {
	RecordStart(sn string)
	RecordCancel(sn string)
	RecordDone(sn string)
}

// Tracker is the live, in-memory cancellation registry consulted on the
// read path of every task's Cancelled() predicate. The in-memory map is
// always the source of truth; audit is a side effect, never consulted
// for IsCancelled.
type Tracker struct {
	mu    sync.Mutex
	flags map[string]bool
	audit Mirror
}

// New returns an empty Tracker with no audit mirror.
func New() *Tracker {
	return &Tracker{flags: make(map[string]bool)}
}

// NewWithAudit returns an empty Tracker that also mirrors every
// Add/Cancel/Remove to audit.
func NewWithAudit(audit Mirror) *Tracker {
	return &Tracker{flags: make(map[string]bool), audit: audit}
}

// Add registers sn at task start.
func (t *Tracker) Add(sn string) {
	t.mu.Lock()
	t.flags[sn] = false
	t.mu.Unlock()
	if t.audit != nil {
		t.audit.RecordStart(sn)
	}
}

// Cancel marks sn cancelled. Called by the out-of-band cancel handler.
func (t *Tracker) Cancel(sn string) {
	t.mu.Lock()
	_, tracked := t.flags[sn]
	if tracked {
		t.flags[sn] = true
	}
	t.mu.Unlock()
	if tracked && t.audit != nil {
		t.audit.RecordCancel(sn)
	}
}

// IsCancelled reports whether sn has been cancelled. Entries not
// currently tracked (never added, or already removed) report false.
func (t *Tracker) IsCancelled(sn string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags[sn]
}

// Remove deletes sn's entry on task completion. The runtime guarantees
// this is called on every exit path, including failure.
func (t *Tracker) Remove(sn string) {
	t.mu.Lock()
	delete(t.flags, sn)
	t.mu.Unlock()
	if t.audit != nil {
		t.audit.RecordDone(sn)
	}
}
