package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"achievibit/internal"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

func newPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{Persistent: true, OutputChannelBuffer: 16}, watermill.NopLogger{})
}

func notificationMessage(t *testing.T, n internal.Notification) *message.Message {
	t.Helper()
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("request_id", n.RequestID)
	return msg
}

func runConsumer(t *testing.T, c *Consumer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
		}
	})
	return cancel
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	var zero T
	return zero
}

func TestConsumerDispatchesByTopic(t *testing.T) {
	pubsub := newPubSub()
	defer pubsub.Close()

	got := make(chan *Change, 1)
	c := New(WithSubscriber(pubsub), WithLogger(internal.NewLogger("consumer-test")))
	c.HandleTopic("achievibit.changes", func(ctx context.Context, change *Change) error {
		got <- change
		return nil
	})

	require.NoError(t, pubsub.Publish("achievibit.changes", notificationMessage(t, internal.Notification{
		Provider:   "github",
		Event:      "pull_request",
		Action:     "labeled",
		RequestID:  "req-1",
		PRID:       "org/repo/pull/5",
		Repository: "org/repo",
		Intents:    []string{"upsert_user", "add_to_set"},
	})))
	runConsumer(t, c)

	change := waitFor(t, got)
	require.Equal(t, "achievibit.changes", change.Topic)
	require.Equal(t, "pull_request/labeled", change.Key())
	require.Equal(t, "org/repo/pull/5", change.PRID)
	require.Equal(t, "req-1", change.Metadata["request_id"])
	require.True(t, change.HasIntent("add_to_set"))
	require.False(t, change.HasIntent("replace_set"))
}

func TestConsumerFallsBackToEventHandler(t *testing.T) {
	pubsub := newPubSub()
	defer pubsub.Close()

	got := make(chan string, 1)
	c := New(WithSubscriber(pubsub), WithTopics("merged"))
	c.HandleEvent("pull_request/closed", func(ctx context.Context, change *Change) error {
		got <- change.PRID
		return nil
	})

	require.NoError(t, pubsub.Publish("merged", notificationMessage(t, internal.Notification{
		Provider: "github",
		Event:    "pull_request",
		Action:   "closed",
		PRID:     "org/repo/pull/7",
	})))
	runConsumer(t, c)

	require.Equal(t, "org/repo/pull/7", waitFor(t, got))
}

type ackPolicy struct{}

func (ackPolicy) OnError(ctx context.Context, change *Change, err error) RetryDecision {
	return RetryDecision{}
}

func TestConsumerRunsMiddlewareAndListeners(t *testing.T) {
	pubsub := newPubSub()
	defer pubsub.Close()

	var (
		mu     sync.Mutex
		calls  []string
		errs   = make(chan error, 1)
		finish = make(chan struct{}, 1)
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, s)
	}

	handlerErr := errors.New("downstream unavailable")
	c := New(
		WithSubscriber(pubsub),
		WithRetry(ackPolicy{}),
		WithMiddleware(func(next Handler) Handler {
			return func(ctx context.Context, change *Change) error {
				record("middleware")
				return next(ctx, change)
			}
		}),
		WithListener(Listener{
			OnMessageStart: func(ctx context.Context, change *Change) { record("start") },
			OnMessageFinish: func(ctx context.Context, change *Change, err error) {
				record("finish")
				select {
				case finish <- struct{}{}:
				default:
				}
			},
			OnError: func(ctx context.Context, change *Change, err error) {
				select {
				case errs <- err:
				default:
				}
			},
		}),
	)
	c.HandleTopic("changes", func(ctx context.Context, change *Change) error {
		record("handler")
		return handlerErr
	})

	require.NoError(t, pubsub.Publish("changes", notificationMessage(t, internal.Notification{Event: "pull_request", Action: "edited"})))
	runConsumer(t, c)

	require.ErrorIs(t, waitFor(t, errs), handlerErr)
	waitFor(t, finish)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"start", "middleware", "handler", "finish"}, calls)
}

func TestConsumerRequiresSubscriberAndTopics(t *testing.T) {
	require.Error(t, New().Run(context.Background()))
	require.Error(t, New(WithSubscriber(newPubSub())).Run(context.Background()))
}

func TestHandleTopicRespectsAllowedTopics(t *testing.T) {
	c := New(WithTopics("a"))
	c.HandleTopic("b", func(ctx context.Context, change *Change) error { return nil })
	require.NotContains(t, c.topicHandlers, "b")
	require.Equal(t, []string{"a"}, c.topics)
}

func TestJSONCodecMetadataFallback(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"intents":["patch_pull_request"]}`))
	msg.Metadata.Set("provider", "github")
	msg.Metadata.Set("event", "pull_request")
	msg.Metadata.Set("action", "closed")
	msg.Metadata.Set("prid", "org/repo/pull/5")

	change, err := JSONCodec{}.Decode("changes", msg)
	require.NoError(t, err)
	require.Equal(t, "github", change.Provider)
	require.Equal(t, "pull_request/closed", change.Key())
	require.Equal(t, "org/repo/pull/5", change.PRID)

	_, err = JSONCodec{}.Decode("changes", message.NewMessage(watermill.NewUUID(), []byte("{")))
	require.Error(t, err)
}

func TestRetryPolicies(t *testing.T) {
	ctx := context.Background()
	err := errors.New("boom")
	require.Equal(t, RetryDecision{Nack: true}, NoRetry{}.OnError(ctx, nil, err))
	require.Equal(t, RetryDecision{}, DropUndecodable{}.OnError(ctx, nil, err))
	require.Equal(t, RetryDecision{Nack: true}, DropUndecodable{}.OnError(ctx, &Change{}, err))
}

func TestTopics(t *testing.T) {
	var cfg internal.Config
	cfg.Notifications.Topic = "achievibit.changes"
	cfg.Rules = []internal.Rule{
		{When: "true", Emit: internal.EmitList{"merged", "achievibit.changes"}},
		{When: "true", Emit: internal.EmitList{"labels"}},
	}
	require.Equal(t, []string{"achievibit.changes", "merged", "labels"}, Topics(cfg))
}

func TestMultiSubscriberTagsDriver(t *testing.T) {
	first, second := newPubSub(), newPubSub()
	multi := &multiSubscriber{subscribers: []namedSubscriber{
		{driver: "gochannel", sub: first},
		{driver: "kafka", sub: second},
	}}
	defer multi.Close()

	require.NoError(t, second.Publish("changes", notificationMessage(t, internal.Notification{Event: "ping"})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := multi.Subscribe(ctx, "changes")
	require.NoError(t, err)

	msg := waitFor(t, ch)
	require.Equal(t, "kafka", msg.Metadata.Get("driver"))
	msg.Ack()
}

func TestBuildSubscriberRejectsPublishOnlyDriver(t *testing.T) {
	_, err := BuildSubscriber(internal.WatermillConfig{Driver: "http"})
	require.Error(t, err)

	sub, err := BuildSubscriber(internal.WatermillConfig{})
	require.NoError(t, err)
	require.NoError(t, sub.Close())
}
