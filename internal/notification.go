package internal

import "encoding/json"

// Notification announces that a delivery changed the projected entities.
// Payload is the decoded provider body; rules read it but it is not
// published.
type Notification struct {
	Provider   string      `json:"provider"`
	Event      string      `json:"event"`
	Action     string      `json:"action,omitempty"`
	Delivery   string      `json:"delivery,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
	PRID       string      `json:"prid,omitempty"`
	Repository string      `json:"repository,omitempty"`
	Intents    []string    `json:"intents"`
	SelfHealed bool        `json:"self_healed"`
	Payload    interface{} `json:"-"`
}

// DecodePayload unmarshals raw into a value suitable for Notification.Payload.
// Invalid JSON yields nil.
func DecodePayload(raw []byte) interface{} {
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Data flattens the payload for rule evaluation. The notification's own
// fields are added under their JSON names unless the payload already has
// them.
func (n Notification) Data() map[string]interface{} {
	data := map[string]interface{}{}
	if object, ok := n.Payload.(map[string]interface{}); ok {
		data = Flatten(object)
	}
	own := map[string]interface{}{
		"provider":    n.Provider,
		"event":       n.Event,
		"action":      n.Action,
		"delivery":    n.Delivery,
		"prid":        n.PRID,
		"repository":  n.Repository,
		"self_healed": n.SelfHealed,
	}
	for key, value := range own {
		if _, exists := data[key]; !exists {
			data[key] = value
		}
	}
	return data
}
