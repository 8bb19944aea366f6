// Package consumer implements the per-plugin ingress reader: validate,
// authenticate, emit accepted/rejected status, and enqueue into the
// pending store. One Consumer is bound to one plugin's inbound queue.
package consumer

import (
	"context"
	"time"

	"github.com/goferhq/gofer/internal/auth"
	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

// Putter is the pending store's persist operation.
type Putter interface {
	Put(env *envelope.Envelope) error
}

// Consumer reads one plugin's inbound queue and drives requests
// through validate -> authenticate -> accept/reject -> enqueue.
type Consumer struct {
	Broker        broker.Broker
	Queue         string
	Authenticator auth.Authenticator
	Store         Putter
	Log           *logging.Logger

	ReceiveTimeout time.Duration
}

// Run blocks, reading messages from Queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	timeout := c.ReceiveTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := c.Broker.Receive(ctx, c.Queue, timeout)
		if err != nil {
			if err == context.Canceled {
				return
			}
			c.Log.Error("queue %s: receive failed: %v", c.Queue, err)
			continue
		}
		if msg == nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *Consumer) handle(msg *broker.Message) {
	env, decodeErr := envelope.Decode(msg.Body)
	if decodeErr != nil {
		c.Log.Error("queue %s: malformed document: %v", c.Queue, decodeErr)
		if env != nil {
			// The document parsed as JSON but failed sn/version validation;
			// it may still carry a usable replyto, so reject through the
			// normal path instead of silently dropping it.
			c.rejected(env, envelope.DecodeErrorCode(decodeErr), decodeErr.Error())
		}
		c.ackOrLog(msg)
		return
	}

	origin, _ := env.Routing()
	if !auth.Verify(c.Authenticator, origin, env) {
		c.rejected(env, "auth.invalid_signature", "signature verification failed")
		c.ackOrLog(msg)
		return
	}

	env.Set("inbound", map[string]interface{}{"queue": c.Queue})

	if env.ReplyTo() != "" {
		data, _ := env.Get(envelope.KeyData)
		c.send(env.ReplyTo(), envelope.NewStatus(env.SN(), envelope.StatusAccepted, data))
	}

	if err := c.Store.Put(env); err != nil {
		c.Log.Error("sn=%s: failed to persist to pending store: %v", env.SN(), err)
		// Not acked: the broker will redeliver, and a same-sn Put on
		// redelivery replaces the same file atomically.
		return
	}

	c.ackOrLog(msg)
}

// rejected sends a rejected status (if the message carried a replyto)
// before the broker message is acked, per the binding decision that
// losing a rejection notification is worse than a harmless redelivery.
func (c *Consumer) rejected(env *envelope.Envelope, code, details string) {
	c.Log.Debug("rejecting sn=%q: %s: %s", env.SN(), code, details)
	if env.ReplyTo() == "" {
		return
	}
	c.send(env.ReplyTo(), envelope.NewRejected(env.SN(), code, details))
}

func (c *Consumer) ackOrLog(msg *broker.Message) {
	if err := msg.Ack.Ack(); err != nil {
		c.Log.Error("ack failed: %v", err)
	}
}

func (c *Consumer) send(replyto string, env *envelope.Envelope) {
	body, err := env.Encode()
	if err != nil {
		c.Log.Error("sn=%s: failed to encode status: %v", env.SN(), err)
		return
	}
	if err := c.Broker.Send(broker.Destination{Exchange: "", RoutingKey: replyto}, body, 0); err != nil {
		c.Log.Error("sn=%s: failed to send status to %s: %v", env.SN(), replyto, err)
	}
}
