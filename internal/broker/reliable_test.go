package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goferhq/gofer/internal/logging"
)

type flakyBroker struct {
	failures int
	sent     int
}

func (f *flakyBroker) DeclareExchange(name string, kind ExchangeKind, durable, autoDelete bool) error {
	return nil
}
func (f *flakyBroker) DeclareQueue(name, exchange, routingKey string, durable, autoDelete, exclusive bool) error {
	return nil
}

func (f *flakyBroker) Send(dest Destination, body []byte, ttl time.Duration) error {
	if f.failures > 0 {
		f.failures--
		return &ConnectionLossError{Err: errors.New("connection reset")}
	}
	f.sent++
	return nil
}

func (f *flakyBroker) Receive(ctx context.Context, queue string, timeout time.Duration) (*Message, error) {
	return nil, nil
}

func (f *flakyBroker) Close() error { return nil }

func TestReliableRetriesConnectionLoss(t *testing.T) {
	inner := &flakyBroker{failures: 2}
	r := NewReliable(inner, logging.New("test", false))
	r.backoff = time.Millisecond
	r.maxWait = time.Millisecond

	if err := r.Send(Destination{Exchange: "x", RoutingKey: "k"}, []byte("body"), 0); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if inner.sent != 1 {
		t.Errorf("expected exactly one successful send, got %d", inner.sent)
	}
}

type protocolErrBroker struct{}

func (p *protocolErrBroker) DeclareExchange(name string, kind ExchangeKind, durable, autoDelete bool) error {
	return nil
}
func (p *protocolErrBroker) DeclareQueue(name, exchange, routingKey string, durable, autoDelete, exclusive bool) error {
	return nil
}
func (p *protocolErrBroker) Send(dest Destination, body []byte, ttl time.Duration) error {
	return errors.New("precondition failed")
}
func (p *protocolErrBroker) Receive(ctx context.Context, queue string, timeout time.Duration) (*Message, error) {
	return nil, nil
}
func (p *protocolErrBroker) Close() error { return nil }

func TestReliablePropagatesNonConnectionErrors(t *testing.T) {
	r := NewReliable(&protocolErrBroker{}, logging.New("test", false))
	err := r.Send(Destination{Exchange: "x", RoutingKey: "k"}, []byte("body"), 0)
	if err == nil {
		t.Fatal("expected protocol error to propagate")
	}
}
