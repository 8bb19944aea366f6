// Package broker defines the uniform adapter contract the core depends
// on, independent of the chosen AMQP-family dialect, plus a reliability
// wrapper that retries forever on connection-loss errors.
package broker

import (
	"context"
	"time"
)

// ExchangeKind names the exchange types the core needs.
type ExchangeKind string

const (
	ExchangeDirect ExchangeKind = "direct"
	ExchangeTopic  ExchangeKind = "topic"
)

// Destination names where a message is published to.
type Destination struct {
	Exchange   string
	RoutingKey string
}

// Message is a received body plus its delivery handle.
type Message struct {
	Body []byte
	Ack  AckHandle
}

// AckHandle lets the core ack or reject a received message without
// knowing the dialect's delivery type.
type AckHandle interface {
	Ack() error
	Reject(requeue bool) error
}

// Broker is the capability set the core depends on. Each dialect
// (amqp.go) implements it; the reliability wrapper (reliable.go) also
// implements it, transparently retrying the underlying dialect.
type Broker interface {
	DeclareExchange(name string, kind ExchangeKind, durable, autoDelete bool) error
	DeclareQueue(name, exchange, routingKey string, durable, autoDelete, exclusive bool) error
	Send(dest Destination, body []byte, ttl time.Duration) error
	Receive(ctx context.Context, queue string, timeout time.Duration) (*Message, error)
	Close() error
}

// ConnectionLossError marks an error recognised as transport flakiness
// the reliability wrapper should retry rather than propagate.
type ConnectionLossError struct {
	Err error
}

func (e *ConnectionLossError) Error() string { return "connection lost: " + e.Err.Error() }
func (e *ConnectionLossError) Unwrap() error { return e.Err }
