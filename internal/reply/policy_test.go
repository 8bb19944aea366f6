package reply

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

type memAck struct{}

func (memAck) Ack() error            { return nil }
func (memAck) Reject(bool) error     { return nil }

// loopbackBroker is a fake broker.Broker whose Send on the request
// destination synchronously simulates an agent replying with a started
// status then a final reply, both delivered back onto the request's
// own replyto queue. Declared queues are simple in-memory channels.
type loopbackBroker struct {
	mu     sync.Mutex
	queues map[string]chan *broker.Message
	reply  func(req *envelope.Envelope) []*envelope.Envelope
}

func newLoopbackBroker(reply func(req *envelope.Envelope) []*envelope.Envelope) *loopbackBroker {
	return &loopbackBroker{queues: make(map[string]chan *broker.Message), reply: reply}
}

func (b *loopbackBroker) DeclareExchange(string, broker.ExchangeKind, bool, bool) error { return nil }

func (b *loopbackBroker) DeclareQueue(name, _, _ string, _, _, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = make(chan *broker.Message, 16)
	}
	return nil
}

func (b *loopbackBroker) Send(dest broker.Destination, body []byte, _ time.Duration) error {
	req, err := envelope.Decode(body)
	if err != nil {
		return err
	}
	for _, out := range b.reply(req) {
		outBody, err := out.Encode()
		if err != nil {
			return err
		}
		b.push(req.ReplyTo(), outBody)
	}
	return nil
}

func (b *loopbackBroker) push(queue string, body []byte) {
	b.mu.Lock()
	ch, ok := b.queues[queue]
	if !ok {
		ch = make(chan *broker.Message, 16)
		b.queues[queue] = ch
	}
	b.mu.Unlock()
	ch <- &broker.Message{Body: body, Ack: memAck{}}
}

func (b *loopbackBroker) Receive(ctx context.Context, queue string, timeout time.Duration) (*broker.Message, error) {
	b.mu.Lock()
	ch, ok := b.queues[queue]
	if !ok {
		ch = make(chan *broker.Message, 16)
		b.queues[queue] = ch
	}
	b.mu.Unlock()
	select {
	case msg := <-ch:
		return msg, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *loopbackBroker) Close() error { return nil }

func TestSynchronousSendReturnsRetvalOnSuccess(t *testing.T) {
	b := newLoopbackBroker(func(req *envelope.Envelope) []*envelope.Envelope {
		started := envelope.NewStatus(req.SN(), envelope.StatusStarted, nil)
		reply := envelope.NewReply(req.SN(), nil)
		reply.SetResultValue("ruf hi")
		return []*envelope.Envelope{started, reply}
	})

	sync, err := NewSynchronous(b, time.Second, time.Second, logging.New("test", false))
	if err != nil {
		t.Fatalf("NewSynchronous: %v", err)
	}

	req := envelope.New()
	req.SetSN("S1")
	req.SetRequest(envelope.Request{ClassName: "Dog", Method: "bark"})

	retval, err := sync.Send(broker.Destination{RoutingKey: "Q"}, req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if retval != "ruf hi" {
		t.Fatalf("unexpected retval: %v", retval)
	}
}

func TestSynchronousSendReturnsErrorOnFailure(t *testing.T) {
	b := newLoopbackBroker(func(req *envelope.Envelope) []*envelope.Envelope {
		started := envelope.NewStatus(req.SN(), envelope.StatusStarted, nil)
		reply := envelope.NewReply(req.SN(), nil)
		reply.SetResultException("boom")
		return []*envelope.Envelope{started, reply}
	})

	sync, err := NewSynchronous(b, time.Second, time.Second, logging.New("test", false))
	if err != nil {
		t.Fatalf("NewSynchronous: %v", err)
	}

	req := envelope.New()
	req.SetSN("S2")
	req.SetRequest(envelope.Request{ClassName: "Dog", Method: "bark"})

	_, err = sync.Send(broker.Destination{RoutingKey: "Q"}, req)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected error \"boom\", got %v", err)
	}
}

func TestSynchronousSendTimesOutWithoutStarted(t *testing.T) {
	b := newLoopbackBroker(func(req *envelope.Envelope) []*envelope.Envelope {
		return nil
	})

	sync, err := NewSynchronous(b, 30*time.Millisecond, time.Second, logging.New("test", false))
	if err != nil {
		t.Fatalf("NewSynchronous: %v", err)
	}

	req := envelope.New()
	req.SetSN("S3")
	req.SetRequest(envelope.Request{ClassName: "Dog", Method: "bark"})

	_, err = sync.Send(broker.Destination{RoutingKey: "Q"}, req)
	if _, ok := err.(*RequestTimeout); !ok {
		t.Fatalf("expected RequestTimeout, got %v", err)
	}
}

func TestAsynchronousSendStampsReplyToFromTag(t *testing.T) {
	var capturedReplyTo string
	b := newLoopbackBroker(func(req *envelope.Envelope) []*envelope.Envelope {
		capturedReplyTo = req.ReplyTo()
		return nil
	})

	a := NewAsynchronous(b, "tag-queue")
	req := envelope.New()
	req.SetSN("S4")
	req.SetRequest(envelope.Request{ClassName: "Dog", Method: "bark"})

	sn, err := a.Send(broker.Destination{RoutingKey: "Q"}, req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sn != "S4" {
		t.Fatalf("unexpected sn: %v", sn)
	}
	if capturedReplyTo != "tag-queue" {
		t.Fatalf("expected replyto stamped from tag, got %q", capturedReplyTo)
	}
}

func TestAsynchronousBroadcastSendsToAllDestinations(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	b := newLoopbackBroker(func(req *envelope.Envelope) []*envelope.Envelope {
		mu.Lock()
		seen = append(seen, req.SN())
		mu.Unlock()
		return nil
	})

	a := NewAsynchronous(b, "tag-queue")
	req := envelope.New()
	req.SetRequest(envelope.Request{ClassName: "Dog", Method: "bark"})

	n := 0
	sns, err := a.Broadcast([]broker.Destination{{RoutingKey: "Q1"}, {RoutingKey: "Q2"}}, req, func() string {
		n++
		return "gen-" + string(rune('0'+n))
	})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(sns) != 2 {
		t.Fatalf("expected 2 serial numbers, got %v", sns)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected broker to see 2 sends, got %v", seen)
	}
}
