// Package scheduler implements the single loop that pulls accepted
// requests from the pending store, resolves the target plugin by
// inbound queue name, and submits a Task to that plugin's worker pool.
// Requests addressed to a queue no plugin owns are routed to a sink
// plugin whose dispatcher immediately yields a "plugin not found"
// failure reply, executed by a direct (non-threaded) executor so it
// can never block real work.
package scheduler

import (
	"time"

	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
	"github.com/goferhq/gofer/internal/pool"
	"github.com/goferhq/gofer/internal/rmi"
)

// Getter is the pending store's blocking read operation.
type Getter interface {
	Get() (*envelope.Envelope, error)
}

// Scheduler is bound to one pending store and dispatches to one or
// more named plugin pools plus the always-present sink pool.
type Scheduler struct {
	store   Getter
	log     *logging.Logger
	plugins map[string]*Plugin
	sink    *Plugin

	stop chan struct{}
}

// Scheduling abstracts pool.Pool and pool.Direct behind one interface
// so the sink plugin can share the scheduler's submission code path.
type Scheduling interface {
	Schedule(call pool.Call)
}

// Plugin binds a worker pool to a task factory producing one Task per
// request for that plugin.
type Plugin struct {
	Name     string
	Pool     Scheduling
	NewTask  func() *rmi.Task
	Requeue  func(env *envelope.Envelope, delay time.Duration)
}

// New creates a Scheduler over store with a sink plugin wired in.
func New(store Getter, log *logging.Logger, sinkTask func() *rmi.Task) *Scheduler {
	s := &Scheduler{
		store:   store,
		log:     log,
		plugins: make(map[string]*Plugin),
		stop:    make(chan struct{}),
	}
	s.sink = &Plugin{
		Name:    "sink",
		Pool:    pool.Direct{},
		NewTask: sinkTask,
	}
	return s
}

// Register binds a named plugin's inbound queue to its worker pool and
// task factory.
func (s *Scheduler) Register(queue string, p *Plugin) {
	s.plugins[queue] = p
}

// Run blocks, pulling one request at a time from the store and
// dispatching it, until Stop is called.
func (s *Scheduler) Run() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		req, err := s.store.Get()
		if err != nil {
			s.log.Error("pending store read failed: %v", err)
			continue
		}
		s.dispatch(req)
	}
}

// Stop signals Run to return after its current iteration.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) dispatch(req *envelope.Envelope) {
	queue := inboundQueue(req)
	plugin, ok := s.plugins[queue]
	if !ok {
		plugin = s.sink
	}

	task := plugin.NewTask()
	if plugin.Requeue != nil {
		task.Requeue = plugin.Requeue
	} else {
		task.Requeue = s.requeueAfterDelay(req)
	}

	plugin.Pool.Schedule(pool.Call{
		Request: req,
		Run:     task.Run,
	})
}

// requeueAfterDelay implements the WindowPending open-question decision:
// the scheduler, not the store, re-dispatches the request after a timer
// so no worker slot is occupied waiting on a caller-controlled delay.
// The request is not Put again; its file stays in the pending store,
// uncommitted, until the re-dispatched task commits it.
func (s *Scheduler) requeueAfterDelay(_ *envelope.Envelope) func(env *envelope.Envelope, delay time.Duration) {
	return func(env *envelope.Envelope, delay time.Duration) {
		time.AfterFunc(delay, func() {
			s.dispatch(env)
		})
	}
}

func inboundQueue(req *envelope.Envelope) string {
	raw, ok := req.Get("inbound")
	if !ok {
		return ""
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return ""
	}
	q, _ := m["queue"].(string)
	return q
}
