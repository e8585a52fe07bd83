package consumer

import "github.com/ThreeDotsLabs/watermill/message"

// Option configures a Consumer.
type Option func(*Consumer)

// WithSubscriber sets the Watermill subscriber.
func WithSubscriber(sub message.Subscriber) Option {
	return func(c *Consumer) {
		c.subscriber = sub
	}
}

// WithTopics subscribes to topics. Once set, HandleTopic only accepts these.
func WithTopics(topics ...string) Option {
	return func(c *Consumer) {
		for _, topic := range topics {
			if topic == "" {
				continue
			}
			c.topics = append(c.topics, topic)
			c.allowedTopics[topic] = struct{}{}
		}
	}
}

// WithConcurrency bounds the messages handled at once across all topics.
func WithConcurrency(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithCodec(codec Codec) Option {
	return func(c *Consumer) {
		if codec != nil {
			c.codec = codec
		}
	}
}

func WithMiddleware(mw ...Middleware) Option {
	return func(c *Consumer) {
		c.middleware = append(c.middleware, mw...)
	}
}

func WithRetry(policy RetryPolicy) Option {
	return func(c *Consumer) {
		if policy != nil {
			c.retry = policy
		}
	}
}

func WithLogger(l Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithListener(listener Listener) Option {
	return func(c *Consumer) {
		c.listeners = append(c.listeners, listener)
	}
}
