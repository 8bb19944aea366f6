package reply

import (
	"context"
	"time"

	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

// Consumer reads one reply queue and, for each envelope, first offers
// it to the match store (a synchronous waiter for that sn) and
// otherwise falls back to the registered listener, matching the
// original's single reply-consumer-class-per-queue design.
type Consumer struct {
	Broker   broker.Broker
	Queue    string
	Log      *logging.Logger
	Matches  *MatchStore
	Listener Listener

	ReceiveTimeout time.Duration
}

// Run blocks, dispatching every received envelope until ctx is done.
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
			c.Log.Error("reply queue %s: receive failed: %v", c.Queue, err)
			continue
		}
		if msg == nil {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Consumer) dispatch(msg *broker.Message) {
	defer c.ack(msg)

	env, err := envelope.Decode(msg.Body)
	if err != nil {
		c.Log.Error("reply queue %s: malformed envelope: %v", c.Queue, err)
		return
	}

	if c.Matches != nil && c.Matches.Deliver(env) {
		return
	}
	if c.Listener != nil {
		notify(c.Listener, Classify(env))
		return
	}
	c.Log.Debug("reply queue %s: sn=%s matched no waiter and no listener is registered", c.Queue, env.SN())
}

func (c *Consumer) ack(msg *broker.Message) {
	if err := msg.Ack.Ack(); err != nil {
		c.Log.Error("reply queue %s: ack failed: %v", c.Queue, err)
	}
}
