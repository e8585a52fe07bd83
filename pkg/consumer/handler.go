package consumer

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler processes one change.
type Handler func(ctx context.Context, change *Change) error

// Middleware wraps a handler.
type Middleware func(Handler) Handler

// Listener hooks into the consumer lifecycle. Every field is optional.
type Listener struct {
	OnStart         func(ctx context.Context)
	OnExit          func(ctx context.Context)
	OnMessageStart  func(ctx context.Context, change *Change)
	OnMessageFinish func(ctx context.Context, change *Change, err error)
	// OnError receives decode failures with a nil change.
	OnError func(ctx context.Context, change *Change, err error)
}

// FromWatermill adapts a Watermill handler middleware, such as
// middleware.Recoverer or middleware.Timeout, to a consumer Middleware.
func FromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, change *Change) error {
			msg := message.NewMessage(watermill.NewUUID(), message.Payload(change.Raw))
			msg.SetContext(ctx)
			for key, value := range change.Metadata {
				msg.Metadata.Set(key, value)
			}
			_, err := m(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), change)
			})(msg)
			return err
		}
	}
}
