package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/goferhq/gofer/internal/logging"
)

// AMQPBroker is the streadway/amqp dialect adapter. Each AMQPBroker
// lazily opens one connection and one channel to its URL on first use
// and shares that mutex-guarded pair across all operations; it is
// reopened after a connection loss and closed by Close. Sessions are
// not reference-counted, and separate AMQPBroker values for the same
// URL do not share a connection.
type AMQPBroker struct {
	url string
	log *logging.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	consumers map[string]<-chan amqp.Delivery
}

// NewAMQP dials url lazily on first use.
func NewAMQP(url string, log *logging.Logger) *AMQPBroker {
	return &AMQPBroker{url: url, log: log}
}

func (b *AMQPBroker) channel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch != nil && !b.ch.IsClosed() {
		return b.ch, nil
	}

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, &ConnectionLossError{Err: err}
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, &ConnectionLossError{Err: err}
	}
	b.conn = conn
	b.ch = ch
	b.consumers = nil
	return ch, nil
}

func (b *AMQPBroker) invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.consumers = nil
}

// deliveries returns the cached consumer delivery channel for queue,
// registering one via ch.Consume the first time it's asked for. Without
// this cache every poll of Receive would register another live AMQP
// consumer on the channel, leaking one per call and stranding deliveries
// on every abandoned consumer's channel. The cache is invalidated whenever
// channel() or invalidate() replaces the underlying *amqp.Channel.
func (b *AMQPBroker) deliveries(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != ch {
		// Reconnected between channel() and here; caller will retry.
		return nil, &ConnectionLossError{Err: errors.New("channel replaced before consume")}
	}
	if d, ok := b.consumers[queue]; ok {
		return d, nil
	}
	d, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	if b.consumers == nil {
		b.consumers = make(map[string]<-chan amqp.Delivery)
	}
	b.consumers[queue] = d
	return d, nil
}

func (b *AMQPBroker) DeclareExchange(name string, kind ExchangeKind, durable, autoDelete bool) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	err = ch.ExchangeDeclare(name, string(kind), durable, autoDelete, false, false, nil)
	if isConnectionLoss(err) {
		b.invalidate()
		return &ConnectionLossError{Err: err}
	}
	return err
}

func (b *AMQPBroker) DeclareQueue(name, exchange, routingKey string, durable, autoDelete, exclusive bool) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	if _, err = ch.QueueDeclare(name, durable, autoDelete, exclusive, false, nil); err != nil {
		if isConnectionLoss(err) {
			b.invalidate()
			return &ConnectionLossError{Err: err}
		}
		return err
	}
	if exchange == "" {
		return nil
	}
	err = ch.QueueBind(name, routingKey, exchange, false, nil)
	if isConnectionLoss(err) {
		b.invalidate()
		return &ConnectionLossError{Err: err}
	}
	return err
}

func (b *AMQPBroker) Send(dest Destination, body []byte, ttl time.Duration) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}
	if ttl > 0 {
		pub.Expiration = fmt.Sprintf("%d", ttl.Milliseconds())
	}
	err = ch.Publish(dest.Exchange, dest.RoutingKey, false, false, pub)
	if isConnectionLoss(err) {
		b.invalidate()
		return &ConnectionLossError{Err: err}
	}
	return err
}

func (b *AMQPBroker) Receive(ctx context.Context, queue string, timeout time.Duration) (*Message, error) {
	ch, err := b.channel()
	if err != nil {
		return nil, err
	}
	deliveries, err := b.deliveries(ch, queue)
	if err != nil {
		if isConnectionLoss(err) {
			b.invalidate()
			return nil, &ConnectionLossError{Err: err}
		}
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d, ok := <-deliveries:
		if !ok {
			b.invalidate()
			return nil, &ConnectionLossError{Err: errors.New("delivery channel closed")}
		}
		return &Message{Body: d.Body, Ack: &amqpAck{delivery: d}}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *AMQPBroker) Close() error {
	b.invalidate()
	return nil
}

type amqpAck struct {
	delivery amqp.Delivery
}

func (a *amqpAck) Ack() error                 { return a.delivery.Ack(false) }
func (a *amqpAck) Reject(requeue bool) error { return a.delivery.Reject(requeue) }

// isConnectionLoss recognises the class of errors that indicate the
// underlying TCP connection or AMQP session is gone, as opposed to
// protocol-level errors (bad argument, precondition failed) that should
// propagate.
func isConnectionLoss(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.ConnectionForced, amqp.InternalError, amqp.FrameError:
			return true
		}
	}
	return false
}
