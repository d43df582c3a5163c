// Package memory provides an in-process broker for tests and local runs.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/auctionlens/gazette-harvester/internal/broker"
)

// Broker is a topic-keyed in-memory message broker. It honors the
// at-least-once contract: a requeued message is redelivered after its
// delay, with the attempt counter incremented.
type Broker struct {
	mu      sync.Mutex
	topics  map[string]chan *message
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

type message struct {
	body     []byte
	attempts uint16
}

type delivery struct {
	msg   *message
	topic chan *message
	b     *Broker
	once  sync.Once
}

func (d *delivery) Body() []byte     { return d.msg.body }
func (d *delivery) Attempts() uint16 { return d.msg.attempts }
func (d *delivery) Finish()          { d.once.Do(func() {}) }

func (d *delivery) Requeue(delay time.Duration) {
	d.once.Do(func() {
		d.b.wg.Add(1)
		go func() {
			defer d.b.wg.Done()
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-d.b.ctx.Done():
			case <-timer.C:
				select {
				case d.topic <- d.msg:
				case <-d.b.ctx.Done():
				}
			}
		}()
	})
}

// New constructs a Broker.
func New() *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		topics: make(map[string]chan *message),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) topic(name string) chan *message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan *message, 1024)
		b.topics[name] = ch
	}
	return ch
}

// Publish appends a message to the topic.
func (b *Broker) Publish(topic string, body []byte) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return errors.New("broker stopped")
	}
	b.mu.Unlock()

	msg := &message{body: append([]byte(nil), body...)}
	select {
	case b.topic(topic) <- msg:
		return nil
	default:
		return errors.New("topic buffer full")
	}
}

// Subscribe starts opts.MaxInFlight goroutines pulling from the topic. The
// channel argument exists for contract parity; the in-memory broker has a
// single consumer group per topic.
func (b *Broker) Subscribe(topic, _ string, opts broker.SubscribeOptions, h broker.Handler) error {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	ch := b.topic(topic)
	for i := 0; i < opts.MaxInFlight; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-b.ctx.Done():
					return
				case msg := <-ch:
					msg.attempts++
					h(b.ctx, &delivery{msg: msg, topic: ch, b: b})
				}
			}
		}()
	}
	return nil
}

// Stop cancels all subscriptions and waits for handlers to return.
func (b *Broker) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
}

// Pending reports the queued (not in-flight) message count on a topic.
// Test helper.
func (b *Broker) Pending(topic string) int {
	return len(b.topic(topic))
}
