package consumer

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Consumer subscribes to notification topics, decodes each message into a
// Change and dispatches it to the matching handler.
type Consumer struct {
	subscriber  message.Subscriber
	codec       Codec
	retry       RetryPolicy
	logger      Logger
	concurrency int
	topics      []string

	topicHandlers map[string]Handler
	eventHandlers map[string]Handler
	middleware    []Middleware
	listeners     []Listener
	allowedTopics map[string]struct{}
}

// New creates a Consumer with the given options.
func New(opts ...Option) *Consumer {
	c := &Consumer{
		codec:         JSONCodec{},
		retry:         NoRetry{},
		logger:        stdLogger{},
		concurrency:   1,
		topicHandlers: make(map[string]Handler),
		eventHandlers: make(map[string]Handler),
		allowedTopics: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTopic registers h for every change published on topic.
func (c *Consumer) HandleTopic(topic string, h Handler) {
	if h == nil || topic == "" {
		return
	}
	if len(c.allowedTopics) > 0 {
		if _, ok := c.allowedTopics[topic]; !ok {
			c.logger.Printf("handler topic not subscribed: %s", topic)
			return
		}
	}
	c.topicHandlers[topic] = h
	c.topics = append(c.topics, topic)
}

// HandleEvent registers h for changes of one event key, such as
// "pull_request/closed". It is consulted when no topic handler matches.
func (c *Consumer) HandleEvent(key string, h Handler) {
	if h == nil || key == "" {
		return
	}
	c.eventHandlers[key] = h
}

// Run subscribes to the topics and processes messages until ctx is done.
// Every topic feeds one queue drained by a fixed pool of goroutines, so the
// concurrency limit holds across topics.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscriber == nil {
		return errors.New("subscriber is required")
	}
	if len(c.topics) == 0 {
		return errors.New("at least one topic is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan inbound)
	var feeds sync.WaitGroup
	for _, topic := range unique(c.topics) {
		msgs, err := c.subscriber.Subscribe(ctx, topic)
		if err != nil {
			c.emit(func(l Listener) {
				if l.OnError != nil {
					l.OnError(ctx, nil, err)
				}
			})
			return err
		}
		feeds.Add(1)
		go func() {
			defer feeds.Done()
			c.feed(ctx, topic, msgs, queue)
		}()
	}

	c.emit(func(l Listener) {
		if l.OnStart != nil {
			l.OnStart(ctx)
		}
	})
	defer c.emit(func(l Listener) {
		if l.OnExit != nil {
			l.OnExit(ctx)
		}
	})

	var pool sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		pool.Add(1)
		go func() {
			defer pool.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case in := <-queue:
					c.handleMessage(ctx, in.topic, in.msg)
				}
			}
		}()
	}

	<-ctx.Done()
	feeds.Wait()
	pool.Wait()
	return nil
}

type inbound struct {
	topic string
	msg   *message.Message
}

func (c *Consumer) feed(ctx context.Context, topic string, msgs <-chan *message.Message, queue chan<- inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case queue <- inbound{topic: topic, msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close shuts down the subscriber.
func (c *Consumer) Close() error {
	if c.subscriber == nil {
		return nil
	}
	return c.subscriber.Close()
}

func (c *Consumer) handleMessage(ctx context.Context, topic string, msg *message.Message) {
	change, err := c.codec.Decode(topic, msg)
	if err != nil {
		c.logger.Printf("decode failed topic=%s: %v", topic, err)
		c.failed(ctx, nil, err)
		c.settle(ctx, msg, nil, err)
		return
	}
	if reqID := change.Metadata["request_id"]; reqID != "" {
		c.logger.Printf("request_id=%s topic=%s event=%s prid=%s", reqID, change.Topic, change.Key(), change.PRID)
	}

	c.emit(func(l Listener) {
		if l.OnMessageStart != nil {
			l.OnMessageStart(ctx, change)
		}
	})

	handler, ok := c.topicHandlers[topic]
	if !ok {
		handler, ok = c.eventHandlers[change.Key()]
	}
	if ok {
		err = c.wrap(handler)(ctx, change)
	} else {
		c.logger.Printf("no handler for topic=%s event=%s", topic, change.Key())
	}

	c.emit(func(l Listener) {
		if l.OnMessageFinish != nil {
			l.OnMessageFinish(ctx, change, err)
		}
	})
	if err != nil {
		c.failed(ctx, change, err)
		c.settle(ctx, msg, change, err)
		return
	}
	msg.Ack()
}

func (c *Consumer) settle(ctx context.Context, msg *message.Message, change *Change, err error) {
	decision := c.retry.OnError(ctx, change, err)
	if decision.Retry || decision.Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (c *Consumer) wrap(h Handler) Handler {
	wrapped := h
	for i := len(c.middleware) - 1; i >= 0; i-- {
		wrapped = c.middleware[i](wrapped)
	}
	return wrapped
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func (c *Consumer) emit(fn func(Listener)) {
	for _, l := range c.listeners {
		fn(l)
	}
}

func (c *Consumer) failed(ctx context.Context, change *Change, err error) {
	c.emit(func(l Listener) {
		if l.OnError != nil {
			l.OnError(ctx, change, err)
		}
	})
}
