// Package broker defines the messaging transport contract the pipeline
// runs on: at-least-once topic publish/subscribe with explicit
// acknowledge/requeue per delivery.
//
// This abstraction keeps the pipeline independent of a specific broker
// implementation; production uses NSQ, tests use the in-memory broker.
package broker

import (
	"context"
	"time"
)

// Delivery is one received message. Exactly one of Finish or Requeue must
// be called for every delivery; until then the message counts against the
// subscription's in-flight budget.
type Delivery interface {
	// Body returns the raw message payload.
	Body() []byte

	// Attempts reports how many times this message has been delivered,
	// including the current delivery.
	Attempts() uint16

	// Finish acknowledges the message and removes it from the queue.
	Finish()

	// Requeue negatively acknowledges the message so it is redelivered
	// after the given delay.
	Requeue(delay time.Duration)
}

// Handler processes a single delivery. Handlers own the Finish/Requeue
// decision; returning is not an acknowledgement.
type Handler func(ctx context.Context, d Delivery)

// SubscribeOptions bound a subscription's concurrency and visibility.
type SubscribeOptions struct {
	// MaxInFlight limits how many unacknowledged deliveries this
	// subscription may hold at once.
	MaxInFlight int

	// MsgTimeout is how long the broker waits for Finish/Requeue before
	// it redelivers the message to another consumer.
	MsgTimeout time.Duration
}

// Publisher pushes messages onto a topic. Publish is fire-and-forget from
// the pipeline's point of view: callers log failures and continue.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Consumer subscribes a channel to a topic and drives deliveries through
// the handler until stopped.
type Consumer interface {
	Subscribe(topic, channel string, opts SubscribeOptions, h Handler) error
	Stop()
}
