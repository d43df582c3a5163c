// Package nsq implements the broker contract on top of NSQ.
package nsq

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonsq "github.com/nsqio/go-nsq"
	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/broker"
)

// Config holds NSQ connection settings.
type Config struct {
	// NSQDAddress is the producer's nsqd TCP address.
	NSQDAddress string
	// LookupdAddresses are nsqlookupd HTTP addresses for consumers. When
	// empty, consumers connect straight to NSQDAddress.
	LookupdAddresses []string
	// ClientID identifies this process to the daemons.
	ClientID string
}

// Broker is an NSQ-backed Publisher and Consumer.
type Broker struct {
	cfg      Config
	logger   *zap.Logger
	producer *gonsq.Producer

	mu        sync.Mutex
	consumers []*gonsq.Consumer
}

var _ broker.Publisher = (*Broker)(nil)
var _ broker.Consumer = (*Broker)(nil)

// New connects a producer to nsqd and returns the broker.
func New(cfg Config, logger *zap.Logger) (*Broker, error) {
	if cfg.NSQDAddress == "" {
		return nil, fmt.Errorf("nsqd address is required")
	}
	nsqCfg := gonsq.NewConfig()
	if cfg.ClientID != "" {
		nsqCfg.ClientID = cfg.ClientID
	}
	producer, err := gonsq.NewProducer(cfg.NSQDAddress, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("ping nsqd: %w", err)
	}
	return &Broker{cfg: cfg, logger: logger, producer: producer}, nil
}

// Publish sends one message to the topic. The producer handles connection
// recovery; callers treat failures as log-and-continue.
func (b *Broker) Publish(topic string, body []byte) error {
	if err := b.producer.Publish(topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

type delivery struct {
	msg *gonsq.Message
}

func (d *delivery) Body() []byte     { return d.msg.Body }
func (d *delivery) Attempts() uint16 { return d.msg.Attempts }
func (d *delivery) Finish()          { d.msg.Finish() }

func (d *delivery) Requeue(delay time.Duration) {
	d.msg.Requeue(delay)
}

type handlerAdapter struct {
	h broker.Handler
}

// HandleMessage bridges NSQ's handler interface to ours. Auto-response is
// disabled so the pipeline handler owns the Finish/Requeue decision, and
// the returned error is always nil: retry policy lives at the application
// layer, not in the NSQ client.
func (a handlerAdapter) HandleMessage(msg *gonsq.Message) error {
	msg.DisableAutoResponse()
	a.h(context.Background(), &delivery{msg: msg})
	return nil
}

// Subscribe attaches maxInFlight concurrent handlers to (topic, channel).
func (b *Broker) Subscribe(topic, channel string, opts broker.SubscribeOptions, h broker.Handler) error {
	nsqCfg := gonsq.NewConfig()
	if b.cfg.ClientID != "" {
		nsqCfg.ClientID = b.cfg.ClientID
	}
	if opts.MaxInFlight > 0 {
		nsqCfg.MaxInFlight = opts.MaxInFlight
	}
	if opts.MsgTimeout > 0 {
		nsqCfg.MsgTimeout = opts.MsgTimeout
	}
	// The application requeues with its own budget and dead-letters at the
	// end; let the client redeliver forever.
	nsqCfg.MaxAttempts = 0

	consumer, err := gonsq.NewConsumer(topic, channel, nsqCfg)
	if err != nil {
		return fmt.Errorf("create nsq consumer for %s/%s: %w", topic, channel, err)
	}

	concurrency := opts.MaxInFlight
	if concurrency <= 0 {
		concurrency = 1
	}
	consumer.AddConcurrentHandlers(handlerAdapter{h: h}, concurrency)

	if len(b.cfg.LookupdAddresses) > 0 {
		err = consumer.ConnectToNSQLookupds(b.cfg.LookupdAddresses)
	} else {
		err = consumer.ConnectToNSQD(b.cfg.NSQDAddress)
	}
	if err != nil {
		consumer.Stop()
		return fmt.Errorf("connect consumer for %s/%s: %w", topic, channel, err)
	}

	b.logger.Info("subscribed",
		zap.String("topic", topic),
		zap.String("channel", channel),
		zap.Int("max_in_flight", opts.MaxInFlight),
	)

	b.mu.Lock()
	b.consumers = append(b.consumers, consumer)
	b.mu.Unlock()
	return nil
}

// Stop drains consumers and stops the producer.
func (b *Broker) Stop() {
	b.mu.Lock()
	consumers := b.consumers
	b.consumers = nil
	b.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
	}
	for _, c := range consumers {
		<-c.StopChan
	}
	b.producer.Stop()
}
