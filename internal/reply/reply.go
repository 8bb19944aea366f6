// Package reply classifies and delivers envelopes arriving on a reply
// queue: status updates (accepted/rejected/started/progress) and final
// replies (succeeded/failed), matching them either to a blocking
// synchronous waiter or to a registered asynchronous listener.
package reply

import "github.com/goferhq/gofer/internal/envelope"

// Kind names what an envelope arriving on a reply queue represents.
type Kind int

const (
	KindStatus Kind = iota
	KindSucceeded
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSucceeded:
		return "succeeded"
	case KindFailed:
		return "failed"
	default:
		return "status"
	}
}

// Reply is the classified, detached view of a received envelope: the
// caller-identifying fields plus whichever of Status/Retval/Exval apply
// to its Kind.
type Reply struct {
	Kind   Kind
	SN     string
	Origin string
	Data   interface{}
	Status string
	Retval interface{}
	Exval  string
}

// Classify inspects a received envelope and produces its Reply view.
// A status envelope (one carrying the reserved status key) is always
// KindStatus regardless of whether it also carries a result; a final
// reply is classified by whether its result holds a value or an
// exception.
func Classify(env *envelope.Envelope) Reply {
	origin, _ := env.Routing()
	data, _ := env.Get(envelope.KeyData)
	r := Reply{SN: env.SN(), Origin: origin, Data: data}

	if status, ok := env.Get(envelope.KeyStatus); ok {
		r.Kind = KindStatus
		r.Status, _ = status.(string)
		return r
	}

	res, ok := env.GetResult()
	if !ok {
		r.Kind = KindFailed
		r.Exval = "missing result"
		return r
	}
	if res.Succeeded() {
		r.Kind = KindSucceeded
		r.Retval = res.Retval
		return r
	}
	r.Kind = KindFailed
	r.Exval = res.Exval
	return r
}

// Listener receives asynchronous notifications for a request this
// process is not blocked waiting on.
type Listener interface {
	Succeeded(r Reply)
	Failed(r Reply)
	Status(r Reply)
}

// ListenerFunc adapts a single function into a Listener that routes
// every kind of reply through it, mirroring the original's support for
// a bare callable in place of a full listener object.
type ListenerFunc func(Reply)

func (f ListenerFunc) Succeeded(r Reply) { f(r) }
func (f ListenerFunc) Failed(r Reply)    { f(r) }
func (f ListenerFunc) Status(r Reply)    { f(r) }

func notify(l Listener, r Reply) {
	if l == nil {
		return
	}
	switch r.Kind {
	case KindSucceeded:
		l.Succeeded(r)
	case KindFailed:
		l.Failed(r)
	default:
		l.Status(r)
	}
}
