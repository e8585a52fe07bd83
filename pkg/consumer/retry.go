package consumer

import "context"

// RetryDecision says how a failed message is settled.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy decides what happens to a message whose handler failed.
// change is nil when decoding failed.
type RetryPolicy interface {
	OnError(ctx context.Context, change *Change, err error) RetryDecision
}

// NoRetry nacks every failed message and leaves redelivery to the broker.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, change *Change, err error) RetryDecision {
	return RetryDecision{Nack: true}
}

// DropUndecodable acks messages that could not be decoded, since they will
// never decode, and nacks handler failures.
type DropUndecodable struct{}

func (DropUndecodable) OnError(ctx context.Context, change *Change, err error) RetryDecision {
	if change == nil {
		return RetryDecision{}
	}
	return RetryDecision{Nack: true}
}
