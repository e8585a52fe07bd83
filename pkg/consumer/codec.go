package consumer

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec turns a Watermill message into a Change.
type Codec interface {
	Decode(topic string, msg *message.Message) (*Change, error)
}

// JSONCodec decodes the JSON notifications written by the publisher.
// Fields missing from the body fall back to the message metadata.
type JSONCodec struct{}

func (JSONCodec) Decode(topic string, msg *message.Message) (*Change, error) {
	change := &Change{Topic: topic, Raw: json.RawMessage(msg.Payload)}
	if err := json.Unmarshal(msg.Payload, &change.Notification); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	change.Metadata = make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		change.Metadata[key] = value
	}
	if change.Provider == "" {
		change.Provider = msg.Metadata.Get("provider")
	}
	if change.Event == "" {
		change.Event = msg.Metadata.Get("event")
	}
	if change.Action == "" {
		change.Action = msg.Metadata.Get("action")
	}
	if change.PRID == "" {
		change.PRID = msg.Metadata.Get("prid")
	}
	if change.RequestID == "" {
		change.RequestID = msg.Metadata.Get("request_id")
	}
	return change, nil
}
