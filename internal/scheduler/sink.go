package scheduler

import (
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
	"github.com/goferhq/gofer/internal/rmi"
	"github.com/goferhq/gofer/internal/tracker"
)

// PluginNotFound is raised when a request's inbound queue names no
// registered plugin. The sink plugin always returns it, never
// consulting a real catalog.
type PluginNotFound struct{ Queue string }

func (e *PluginNotFound) Error() string { return "PluginNotFound(" + e.Queue + ")" }

// NewSinkTaskFactory builds the task factory used by the sink plugin so
// a request addressed to an unknown queue still produces exactly one
// informative reply to the caller, via the Direct (non-threaded)
// executor.
func NewSinkTaskFactory(store rmi.Committer, sender rmi.Sender, log *logging.Logger) func() *rmi.Task {
	return func() *rmi.Task {
		return &rmi.Task{
			Catalog: rmi.NewCatalog(),
			Tracker: tracker.New(),
			Store:   store,
			Sender:  sender,
			Log:     log,
			Resolve: func(req *envelope.Envelope) (interface{}, error) {
				return nil, &PluginNotFound{Queue: inboundQueue(req)}
			},
		}
	}
}
