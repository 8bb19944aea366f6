// Package client is the public caller-facing SDK: connect to the
// broker, make synchronous or fire-and-forget remote calls, broadcast
// to many destinations, and optionally listen for asynchronous
// replies. It wraps internal/reply's request policies and
// internal/broker's transport behind a small connection-lifecycle API,
// mirroring the shape of the teacher's client.BrokerClient
// (Connect/Disconnect, request/response correlation, background
// listener) re-grounded on AMQP instead of a custom TCP protocol.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goferhq/gofer/internal/auth"
	"github.com/goferhq/gofer/internal/broker"
	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
	"github.com/goferhq/gofer/internal/reply"
)

// DefaultStartedTimeout and DefaultReplyTimeout bound a synchronous
// Call when the caller does not override them.
const (
	DefaultStartedTimeout = 10 * time.Second
	DefaultReplyTimeout   = 60 * time.Second
)

// Client is a connected caller session: one AMQP connection, one
// sender identity, and (lazily) one synchronous reply queue.
type Client struct {
	broker   broker.Broker
	authr    auth.Authenticator
	senderID string
	log      *logging.Logger

	startedTimeout time.Duration
	replyTimeout   time.Duration

	sync *reply.Synchronous
}

// Option configures a Client at Dial time.
type Option func(*Client)

// WithAuthenticator signs every outbound request with a.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *Client) { c.authr = a }
}

// WithTimeouts overrides the default started/reply timeouts used by
// Call.
func WithTimeouts(started, reply time.Duration) Option {
	return func(c *Client) { c.startedTimeout = started; c.replyTimeout = reply }
}

// Dial opens a reliable connection to the broker at url under the
// given sender identity.
func Dial(url, senderID string, log *logging.Logger, opts ...Option) (*Client, error) {
	b := broker.NewReliable(broker.NewAMQP(url, log), log)
	c := &Client{
		broker:         b,
		senderID:       senderID,
		log:            log,
		startedTimeout: DefaultStartedTimeout,
		replyTimeout:   DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the underlying broker connection.
func (c *Client) Close() error { return c.broker.Close() }

// newWithBroker builds a Client over an already-constructed broker,
// bypassing Dial's AMQP wiring. Used by tests against a fake broker.
func newWithBroker(b broker.Broker, senderID string, log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		broker:         b,
		senderID:       senderID,
		log:            log,
		startedTimeout: DefaultStartedTimeout,
		replyTimeout:   DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) buildRequest(classname, method string, args []interface{}, kws map[string]interface{}, dest string) *envelope.Envelope {
	if kws == nil {
		kws = map[string]interface{}{}
	}
	req := envelope.New()
	req.SetSN(uuid.NewString())
	req.SetRouting(c.senderID, dest)
	req.SetRequest(envelope.Request{ClassName: classname, Method: method, Args: args, Kws: kws})
	auth.Sign(c.authr, c.senderID, req, c.log)
	return req
}

// Call makes a synchronous remote call: it blocks for the started
// status and then the final reply, returning the peer's retval or its
// remote exception as a Go error.
func (c *Client) Call(destQueue, classname, method string, args []interface{}, kws map[string]interface{}) (interface{}, error) {
	if c.sync == nil {
		s, err := reply.NewSynchronous(c.broker, c.startedTimeout, c.replyTimeout, c.log)
		if err != nil {
			return nil, fmt.Errorf("open synchronous reply channel: %w", err)
		}
		c.sync = s
	}
	req := c.buildRequest(classname, method, args, kws, destQueue)
	return c.sync.Send(broker.Destination{RoutingKey: destQueue}, req)
}

// Send fires a request without waiting for a reply. If tag is
// non-empty, any reply the peer sends is addressed to tag's queue for
// later pickup by Listen; an empty tag means no reply is requested at
// all.
func (c *Client) Send(destQueue, classname, method string, args []interface{}, kws map[string]interface{}, tag string) (sn string, err error) {
	async := reply.NewAsynchronous(c.broker, tag)
	req := c.buildRequest(classname, method, args, kws, destQueue)
	return async.Send(broker.Destination{RoutingKey: destQueue}, req)
}

// Broadcast fires the same request at every destination queue, each
// copy carrying its own serial number, returning the serial numbers in
// destQueues order.
func (c *Client) Broadcast(destQueues []string, classname, method string, args []interface{}, kws map[string]interface{}, tag string) ([]string, error) {
	async := reply.NewAsynchronous(c.broker, tag)
	req := c.buildRequest(classname, method, args, kws, "")
	dests := make([]broker.Destination, len(destQueues))
	for i, q := range destQueues {
		dests[i] = broker.Destination{RoutingKey: q}
	}
	return async.Broadcast(dests, req, func() string { return uuid.NewString() })
}

// Listen begins delivering replies addressed to tag's queue to
// listener until ctx is done, for correlating Send's fire-and-forget
// requests after the fact.
func (c *Client) Listen(ctx context.Context, tag string, listener reply.Listener) error {
	async := reply.NewAsynchronous(c.broker, tag)
	return async.StartListening(ctx, listener, c.log)
}
