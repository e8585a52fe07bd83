package consumer

import (
	"encoding/json"

	"achievibit/internal"
)

// Change is a received notification with its transport details.
type Change struct {
	internal.Notification
	// Topic the message arrived on.
	Topic string `json:"topic"`
	// Metadata holds the Watermill message metadata, including "driver"
	// when several subscribers are merged.
	Metadata map[string]string `json:"metadata"`
	// Raw is the message payload as published.
	Raw json.RawMessage `json:"-"`
}

// Key returns "event/action", or just the event when it has no action.
func (c *Change) Key() string {
	if c.Action == "" {
		return c.Event
	}
	return c.Event + "/" + c.Action
}

// HasIntent reports whether the delivery produced an intent of kind.
func (c *Change) HasIntent(kind string) bool {
	for _, intent := range c.Intents {
		if intent == kind {
			return true
		}
	}
	return false
}
