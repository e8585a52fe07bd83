package engine

import "achievibit/pkg/event"

// Handler turns one kind of delivery into store intents. There is one method
// per (event type, action) pair the service understands.
type Handler interface {
	NewConnection(evt *event.Event) ([]Intent, error)
	PullRequestOpened(evt *event.Event) ([]Intent, error)
	PullRequestLabeled(evt *event.Event) ([]Intent, error)
	PullRequestUnlabeled(evt *event.Event) ([]Intent, error)
	PullRequestEdited(evt *event.Event) ([]Intent, error)
	PullRequestAssigned(evt *event.Event) ([]Intent, error)
	PullRequestUnassigned(evt *event.Event) ([]Intent, error)
	ReviewRequested(evt *event.Event) ([]Intent, error)
	ReviewRequestRemoved(evt *event.Event) ([]Intent, error)
	ReviewCommentCreated(evt *event.Event) ([]Intent, error)
	ReviewCommentEdited(evt *event.Event) ([]Intent, error)
	ReviewCommentDeleted(evt *event.Event) ([]Intent, error)
	ReviewSubmitted(evt *event.Event) ([]Intent, error)
	PullRequestClosed(evt *event.Event) ([]Intent, error)
	PullRequestMerged(evt *event.Event) ([]Intent, error)
}
