package engine

import (
	"errors"

	"achievibit/pkg/event"
)

type route func(Handler, *event.Event) ([]Intent, error)

var routes = map[event.Key]route{
	{Type: "ping"}:                                           Handler.NewConnection,
	{Type: "repository", Action: "created"}:                  Handler.NewConnection,
	{Type: "pull_request", Action: "opened"}:                 Handler.PullRequestOpened,
	{Type: "pull_request", Action: "labeled"}:                Handler.PullRequestLabeled,
	{Type: "pull_request", Action: "unlabeled"}:              Handler.PullRequestUnlabeled,
	{Type: "pull_request", Action: "edited"}:                 Handler.PullRequestEdited,
	{Type: "pull_request", Action: "assigned"}:               Handler.PullRequestAssigned,
	{Type: "pull_request", Action: "unassigned"}:             Handler.PullRequestUnassigned,
	{Type: "pull_request", Action: "review_requested"}:       Handler.ReviewRequested,
	{Type: "pull_request", Action: "review_request_removed"}: Handler.ReviewRequestRemoved,
	{Type: "pull_request", Action: "closed"}:                 Handler.PullRequestClosed,
	{Type: "pull_request", Action: "merged"}:                 Handler.PullRequestMerged,
	{Type: "pull_request_review", Action: "submitted"}:       Handler.ReviewSubmitted,
	{Type: "pull_request_review_comment", Action: "created"}: Handler.ReviewCommentCreated,
	{Type: "pull_request_review_comment", Action: "edited"}:  Handler.ReviewCommentEdited,
	{Type: "pull_request_review_comment", Action: "deleted"}: Handler.ReviewCommentDeleted,
}

// Router dispatches events to the Handler method registered for their
// (type, action) pair.
type Router struct {
	handler Handler
}

// NewRouter returns a Router backed by handler.
func NewRouter(handler Handler) *Router {
	return &Router{handler: handler}
}

// Supports reports whether key has a route.
func (r *Router) Supports(key event.Key) bool {
	_, ok := routes[key]
	return ok
}

// Route runs the handler for evt. Unknown pairs return an error wrapping
// event.ErrIgnored.
func (r *Router) Route(evt *event.Event) ([]Intent, error) {
	if evt == nil {
		return nil, errors.New("event is required")
	}
	fn, ok := routes[evt.Key()]
	if !ok {
		return nil, event.Ignored(evt.Key(), "")
	}
	return fn(r.handler, evt)
}
