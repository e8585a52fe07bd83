package event

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload means a required field is missing or undecodable.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNotImplemented means the action is known but has no handler yet.
	ErrNotImplemented = errors.New("not implemented")
	// ErrIgnored means the delivery carries nothing this service projects.
	ErrIgnored = errors.New("event ignored")
)

// Malformed wraps ErrMalformedPayload with the missing field name.
func Malformed(field string) error {
	return fmt.Errorf("%w: %s is missing", ErrMalformedPayload, field)
}

// Ignored wraps ErrIgnored with the key that was not handled.
func Ignored(key Key, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: %s", ErrIgnored, key)
	}
	return fmt.Errorf("%w: %s (%s)", ErrIgnored, key, reason)
}
