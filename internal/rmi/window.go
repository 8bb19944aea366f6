package rmi

import (
	"time"

	"github.com/goferhq/gofer/internal/envelope"
)

// WindowMissed is raised when now is past window.end.
type WindowMissed struct{ SN string }

func (e *WindowMissed) Error() string { return "WindowMissed(" + e.SN + ")" }

// WindowPending signals that window.begin is still in the future: the
// request is not executed now and should be re-persisted with a delay
// rather than occupy a worker.
type WindowPending struct {
	SN    string
	Delay time.Duration
}

func (e *WindowPending) Error() string { return "WindowPending(" + e.SN + ")" }

// checkWindow evaluates an envelope's optional window against now. A
// bare begin-only window is "start no earlier than"; nil, nil means the
// request may run immediately.
func checkWindow(env *envelope.Envelope, now time.Time) error {
	w, ok := env.GetWindow()
	if !ok {
		return nil
	}
	if w.End != "" {
		end, err := time.Parse(time.RFC3339, w.End)
		if err == nil && now.After(end) {
			return &WindowMissed{SN: env.SN()}
		}
	}
	if w.Begin != "" {
		begin, err := time.Parse(time.RFC3339, w.Begin)
		if err == nil && now.Before(begin) {
			return &WindowPending{SN: env.SN(), Delay: begin.Sub(now)}
		}
	}
	return nil
}
