package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/broker"
	"github.com/auctionlens/gazette-harvester/internal/metrics"
)

// RetryPolicy is the pipeline's failure budget for one subscription.
type RetryPolicy struct {
	// MaxAttempts is the total delivery budget per message, including the
	// first attempt.
	MaxAttempts uint16

	// RequeueDelay is how long a failed message waits before redelivery.
	RequeueDelay time.Duration
}

// DeadLetterTopic names the parking topic for messages a subscription has
// given up on. Parked messages keep their original body so an operator
// can replay them unchanged.
func DeadLetterTopic(topic string) string {
	return topic + ".deadletter"
}

// WithRetry wraps a message handler with the pipeline's failure policy:
// transient errors requeue with a fixed delay until the attempt budget
// runs out, then the message is dead-lettered; invalid input is
// dead-lettered immediately since redelivery can never fix it.
func WithRetry(policy RetryPolicy, pub broker.Publisher, topic string, logger *zap.Logger, handle func(ctx context.Context, body []byte) error) broker.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, d broker.Delivery) {
		err := handle(ctx, d.Body())
		if err == nil {
			d.Finish()
			return
		}
		if IsInvalid(err) {
			logger.Warn("dropping invalid message",
				zap.String("topic", topic),
				zap.Error(err),
			)
			deadLetter(pub, topic, d.Body(), logger)
			d.Finish()
			return
		}
		if d.Attempts() >= policy.MaxAttempts {
			logger.Error("attempt budget exhausted",
				zap.String("topic", topic),
				zap.Uint16("attempts", d.Attempts()),
				zap.Error(err),
			)
			deadLetter(pub, topic, d.Body(), logger)
			d.Finish()
			return
		}
		logger.Warn("handler failed, requeueing",
			zap.String("topic", topic),
			zap.Uint16("attempts", d.Attempts()),
			zap.Duration("delay", policy.RequeueDelay),
			zap.Error(err),
		)
		metrics.Requeued(topic)
		d.Requeue(policy.RequeueDelay)
	}
}

func deadLetter(pub broker.Publisher, topic string, body []byte, logger *zap.Logger) {
	if err := pub.Publish(DeadLetterTopic(topic), body); err != nil {
		logger.Error("dead-letter publish failed",
			zap.String("topic", DeadLetterTopic(topic)),
			zap.Error(err),
		)
		return
	}
	metrics.DeadLettered(topic)
}
