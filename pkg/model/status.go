package model

import "fmt"

// Status is the lifecycle state of a pull request.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusMerged Status = "MERGED"
	StatusClosed Status = "CLOSED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusMerged, StatusClosed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusClosed
}

// CanTransition reports whether a pull request in status s may move to next.
// Staying in the same status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusOpen && next.Terminal()
}

// ParseStatus converts a stored value back into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown pull request status %q", value)
	}
	return s, nil
}
