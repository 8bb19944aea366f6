package rmi

import (
	"sync"

	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/tracker"
)

// Progress is the mutable handle a plugin method uses to report its own
// progress at its own pace. Fields are directly mutable, matching the
// original's plain-attribute Progress object; Report emits a progress
// status envelope via the installed reporter.
type Progress struct {
	mu        sync.Mutex
	Total     int
	Completed int
	Details   string

	sn       string
	data     interface{}
	reporter func(env *envelope.Envelope)
}

// Report emits {status: "progress", sn, data, total, completed, details}
// to replyto. Best-effort: callers are never blocked or failed by a
// send error here, matching C8's "log and swallow" policy for status
// sends.
func (p *Progress) Report() {
	p.mu.Lock()
	env := envelope.NewProgress(p.sn, p.data, p.Total, p.Completed, p.Details)
	p.mu.Unlock()
	if p.reporter != nil {
		p.reporter(env)
	}
}

// Context is the per-task scoped record handed to a plugin method as its
// ctx argument for the duration of the call: sn, a progress handle, and
// a cancelled() predicate.
type Context struct {
	SN       string
	Progress *Progress

	tracker *tracker.Tracker
}

// Cancelled consults the cancellation tracker for this task's sn.
// Plugin code is expected to poll it periodically; the runtime never
// interrupts a running method on its own.
func (c *Context) Cancelled() bool {
	return c.tracker.IsCancelled(c.SN)
}

// newContext builds a Context for sn, wiring its Progress handle to
// reporter and its Cancelled predicate to tr. The caller is responsible
// for calling tr.Add(sn) before, and tr.Remove(sn) after, the task runs
// so that the set of tracker entries matches the set of live contexts.
func newContext(sn string, data interface{}, tr *tracker.Tracker, reporter func(env *envelope.Envelope)) *Context {
	return &Context{
		SN: sn,
		Progress: &Progress{
			sn:       sn,
			data:     data,
			reporter: reporter,
		},
		tracker: tr,
	}
}
