package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

// RequestTimeout is raised when a synchronous caller's started status
// or final reply does not arrive within its policy's timeout.
type RequestTimeout struct{ SN string }

func (e *RequestTimeout) Error() string { return fmt.Sprintf("request timeout: sn=%s", e.SN) }

// Synchronous blocks the caller until the request's started status and
// final reply both arrive, each under its own timeout, matching the
// original's split (started, reply) timeout tuple.
type Synchronous struct {
	broker  broker.Broker
	queue   string
	matches *MatchStore
	consumer *Consumer

	startedTimeout time.Duration
	replyTimeout   time.Duration
}

// NewSynchronous declares a private, exclusive, non-durable reply
// queue, starts consuming it, and returns a policy bound to it. started
// and reply are independent timeouts for the two phases of a call.
func NewSynchronous(b broker.Broker, started, reply time.Duration, log *logging.Logger) (*Synchronous, error) {
	queue := uuid.NewString()
	if err := b.DeclareQueue(queue, "", queue, false, true, true); err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}
	matches := NewMatchStore()
	consumer := &Consumer{Broker: b, Queue: queue, Log: log, Matches: matches}
	go consumer.Run(context.Background())
	return &Synchronous{
		broker:         b,
		queue:          queue,
		matches:        matches,
		consumer:       consumer,
		startedTimeout: started,
		replyTimeout:   reply,
	}, nil
}

// Queue is this policy's reply address, used as a request's replyto.
func (s *Synchronous) Queue() string { return s.queue }

// Send publishes req to dest with this policy's reply queue as replyto,
// then blocks for the started status followed by the final reply,
// returning the remote retval or the remote exception as a Go error.
func (s *Synchronous) Send(dest broker.Destination, req *envelope.Envelope) (interface{}, error) {
	sn := req.SN()
	req.SetReplyTo(s.queue)

	ch := s.matches.Register(sn)
	defer s.matches.Cancel(sn)

	body, err := req.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.broker.Send(dest, body, 0); err != nil {
		return nil, err
	}

	done, retval, err := s.awaitStarted(sn, ch)
	if err != nil || done {
		return retval, err
	}
	return s.awaitReply(sn, ch)
}

// awaitStarted reports done=true when the final reply arrived in place
// of the started status, together with that reply's outcome.
func (s *Synchronous) awaitStarted(sn string, ch <-chan *envelope.Envelope) (bool, interface{}, error) {
	select {
	case env := <-ch:
		r := Classify(env)
		if r.Kind == KindStatus && r.Status == envelope.StatusStarted {
			return false, nil, nil
		}
		// Any other status (accepted, progress) keeps waiting for started;
		// a final reply arriving this early means the method was
		// synchronous enough that started was skipped, which is fine.
		if r.Kind != KindStatus {
			retval, err := s.resolve(r)
			return true, retval, err
		}
		return s.awaitStarted(sn, ch)
	case <-time.After(s.startedTimeout):
		return false, nil, &RequestTimeout{SN: sn}
	}
}

func (s *Synchronous) awaitReply(sn string, ch <-chan *envelope.Envelope) (interface{}, error) {
	select {
	case env := <-ch:
		r := Classify(env)
		if r.Kind == KindStatus {
			return s.awaitReply(sn, ch)
		}
		if r.Kind == KindSucceeded {
			return r.Retval, nil
		}
		return nil, errors.New(r.Exval)
	case <-time.After(s.replyTimeout):
		return nil, &RequestTimeout{SN: sn}
	}
}

func (s *Synchronous) resolve(r Reply) (interface{}, error) {
	if r.Kind == KindSucceeded {
		return r.Retval, nil
	}
	return nil, errors.New(r.Exval)
}

// Close does nothing and always returns nil; it exists for API symmetry
// with Broker.Close. The background consumer started by NewSynchronous
// runs on context.Background and is not stopped by Close.
func (s *Synchronous) Close() error { return nil }

// Asynchronous fires a request and returns immediately; any reply is
// delivered later to whichever Listener is bound to the correlation
// tag's queue, or dropped if none is registered.
type Asynchronous struct {
	broker broker.Broker
	tag    string
}

// NewAsynchronous builds a fire-and-forget policy. An empty tag means
// the request carries no replyto at all: the peer will not send any
// status or reply back.
func NewAsynchronous(b broker.Broker, tag string) *Asynchronous {
	return &Asynchronous{broker: b, tag: tag}
}

func (a *Asynchronous) replyTo() string {
	if a.tag == "" {
		return ""
	}
	return a.tag
}

// StartListening declares this policy's correlation-tag queue and
// begins routing every reply arriving on it to listener, until ctx is
// done. Only meaningful when the policy was built with a non-empty tag.
func (a *Asynchronous) StartListening(ctx context.Context, listener Listener, log *logging.Logger) error {
	if a.tag == "" {
		return fmt.Errorf("asynchronous policy has no correlation tag to listen on")
	}
	if err := a.broker.DeclareQueue(a.tag, "", a.tag, true, false, false); err != nil {
		return fmt.Errorf("declare tag queue: %w", err)
	}
	consumer := &Consumer{Broker: a.broker, Queue: a.tag, Log: log, Listener: listener}
	go consumer.Run(ctx)
	return nil
}

// Send publishes req to dest, stamping replyto from the correlation
// tag, and returns the request's serial number for later correlation.
func (a *Asynchronous) Send(dest broker.Destination, req *envelope.Envelope) (string, error) {
	req.SetReplyTo(a.replyTo())
	body, err := req.Encode()
	if err != nil {
		return "", err
	}
	if err := a.broker.Send(dest, body, 0); err != nil {
		return "", err
	}
	return req.SN(), nil
}

// Broadcast publishes a copy of req to every destination, each copy
// carrying its own serial number and the same reply tag, returning the
// serial numbers in dests order.
func (a *Asynchronous) Broadcast(dests []broker.Destination, req *envelope.Envelope, newSN func() string) ([]string, error) {
	var sns []string
	for _, dest := range dests {
		dup := req.Clone()
		dup.SetSN(newSN())
		sn, err := a.Send(dest, dup)
		if err != nil {
			return sns, fmt.Errorf("broadcast to %s/%s: %w", dest.Exchange, dest.RoutingKey, err)
		}
		sns = append(sns, sn)
	}
	return sns, nil
}
