package broker

import (
	"context"
	"errors"
	"time"

	"github.com/goferhq/gofer/internal/logging"
)

// Reliable wraps a Broker so that every session-using operation is
// retried indefinitely, with backoff, whenever the underlying dialect
// reports a ConnectionLossError. Other errors propagate unchanged.
type Reliable struct {
	inner   Broker
	log     *logging.Logger
	backoff time.Duration
	maxWait time.Duration
}

// NewReliable wraps inner with the default backoff schedule (starts at
// 1s, doubles up to a 30s ceiling).
func NewReliable(inner Broker, log *logging.Logger) *Reliable {
	return &Reliable{inner: inner, log: log, backoff: time.Second, maxWait: 30 * time.Second}
}

func (r *Reliable) retry(op string, fn func() error) error {
	wait := r.backoff
	for {
		err := fn()
		if err == nil {
			return nil
		}
		var lossErr *ConnectionLossError
		if !errors.As(err, &lossErr) {
			return err
		}
		r.log.Error("%s: connection lost: %v (retrying in %v)", op, err, wait)
		time.Sleep(wait)
		wait *= 2
		if wait > r.maxWait {
			wait = r.maxWait
		}
	}
}

func (r *Reliable) DeclareExchange(name string, kind ExchangeKind, durable, autoDelete bool) error {
	return r.retry("declare_exchange", func() error {
		return r.inner.DeclareExchange(name, kind, durable, autoDelete)
	})
}

func (r *Reliable) DeclareQueue(name, exchange, routingKey string, durable, autoDelete, exclusive bool) error {
	return r.retry("declare_queue", func() error {
		return r.inner.DeclareQueue(name, exchange, routingKey, durable, autoDelete, exclusive)
	})
}

func (r *Reliable) Send(dest Destination, body []byte, ttl time.Duration) error {
	return r.retry("send", func() error {
		return r.inner.Send(dest, body, ttl)
	})
}

// Receive retries connection-loss errors too, but a nil/nil timeout
// result (no message available) is not an error and is returned as-is
// without retry.
func (r *Reliable) Receive(ctx context.Context, queue string, timeout time.Duration) (*Message, error) {
	var msg *Message
	err := r.retry("receive", func() error {
		m, err := r.inner.Receive(ctx, queue, timeout)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}

func (r *Reliable) Close() error {
	return r.inner.Close()
}
