package rmi

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
	"github.com/goferhq/gofer/internal/tracker"
)

// Sender publishes a status or reply envelope to a reply address. A
// send failure is always logged and swallowed by the task runtime; it
// never aborts execution.
type Sender interface {
	SendTo(replyto string, env *envelope.Envelope) error
}

// Committer is the pending store's commit operation, depended on by
// name rather than by the concrete store type.
type Committer interface {
	Commit(sn string) error
}

// Task executes exactly one request: window check, started status,
// dispatch, commit, final reply, context cleanup. Commit always
// happens before the final reply is sent.
type Task struct {
	Catalog *Catalog
	Tracker *tracker.Tracker
	Store   Committer
	Sender  Sender
	Log     *logging.Logger
	Requeue func(env *envelope.Envelope, delay time.Duration) // WindowPending re-persist hook

	// Resolve overrides normal catalog dispatch when set, used by the
	// sink plugin to always yield a PluginNotFound failure without
	// ever consulting a real catalog.
	Resolve func(req *envelope.Envelope) (interface{}, error)
}

// Run executes req to completion. The caller (worker pool) is
// responsible for invoking Run on the selected worker's goroutine.
func (t *Task) Run(req *envelope.Envelope) {
	sn := req.SN()
	replyto := req.ReplyTo()
	data, _ := req.Get(envelope.KeyData)

	if err := checkWindow(req, time.Now().UTC()); err != nil {
		if wp, ok := err.(*WindowPending); ok {
			t.Log.Debug("sn=%s window pending, re-persisting with delay %v", sn, wp.Delay)
			if t.Requeue != nil {
				t.Requeue(req, wp.Delay)
			}
			return
		}
		t.commitAndReply(sn, replyto, data, err)
		return
	}

	if replyto != "" {
		t.sendStatus(envelope.NewStatus(sn, envelope.StatusStarted, data), replyto)
	}

	t.Tracker.Add(sn)
	ctx := newContext(sn, data, t.Tracker, func(env *envelope.Envelope) {
		if replyto != "" {
			t.sendStatus(env, replyto)
		}
	})

	started := time.Now()
	retval, dispatchErr := t.dispatch(ctx, req)
	duration := time.Since(started)

	t.Tracker.Remove(sn)

	if dispatchErr != nil {
		t.Log.Info("sn=%s processed in: %v (failed: %v)", sn, duration, dispatchErr)
		t.commitAndReply(sn, replyto, data, dispatchErr)
		return
	}
	t.Log.Info("sn=%s processed in: %v", sn, duration)
	t.commitAndReplyValue(sn, replyto, data, retval)
}

// dispatch resolves and invokes the request's classname/method,
// recovering a panicking plugin method the same way a returned error
// is handled: neither is ever propagated past the task runtime.
func (t *Task) dispatch(ctx *Context, req *envelope.Envelope) (retval interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v\n%s", r, debug.Stack())
		}
	}()
	if t.Resolve != nil {
		return t.Resolve(req)
	}
	rq, ok := req.GetRequest()
	if !ok {
		return nil, fmt.Errorf("request envelope missing request sub-document")
	}
	return t.Catalog.Dispatch(ctx, rq.ClassName, rq.Method, rq.Args, rq.Kws)
}

func (t *Task) commitAndReply(sn, replyto string, data interface{}, err error) {
	if commitErr := t.Store.Commit(sn); commitErr != nil {
		t.Log.Error("sn=%s commit failed: %v; reply withheld, request will replay on restart", sn, commitErr)
		return
	}
	if replyto == "" {
		return
	}
	reply := envelope.NewReply(sn, data)
	reply.SetResultException(err.Error())
	t.sendStatus(reply, replyto)
}

func (t *Task) commitAndReplyValue(sn, replyto string, data interface{}, retval interface{}) {
	if commitErr := t.Store.Commit(sn); commitErr != nil {
		t.Log.Error("sn=%s commit failed: %v; reply withheld, request will replay on restart", sn, commitErr)
		return
	}
	if replyto == "" {
		return
	}
	reply := envelope.NewReply(sn, data)
	reply.SetResultValue(retval)
	t.sendStatus(reply, replyto)
}

func (t *Task) sendStatus(env *envelope.Envelope, replyto string) {
	if err := t.Sender.SendTo(replyto, env); err != nil {
		t.Log.Error("sn=%s send to %s failed: %v", env.SN(), replyto, err)
	}
}

// brokerSender is the concrete Sender backed by a broker.Broker,
// publishing to the default (no-name) exchange with the reply address
// used directly as the routing key, matching a point-to-point reply
// queue addressed by name.
type brokerSender struct {
	b broker.Broker
}

// NewBrokerSender adapts a broker.Broker into a Sender.
func NewBrokerSender(b broker.Broker) Sender {
	return &brokerSender{b: b}
}

func (s *brokerSender) SendTo(replyto string, env *envelope.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return s.b.Send(broker.Destination{Exchange: "", RoutingKey: replyto}, body, 0)
}
