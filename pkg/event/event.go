// Package event defines the provider-neutral form of a webhook delivery.
package event

import "achievibit/pkg/model"

// Event is a decoded webhook delivery. Provider adapters fill in whatever the
// payload carried; absent entities stay None.
type Event struct {
	Provider string
	Type     string
	Action   string
	Delivery string

	Repository model.Option[model.Repository]
	// Owner is set only when the repository owner is an organization.
	Owner       model.Option[model.User]
	Creator     model.Option[model.User]
	PullRequest model.Option[model.PullRequest]

	Label             string
	Assignees         []model.User
	RequestedReviewer model.Option[model.User]
	RequestedTeam     string
	// InitialLabels and InitialReviewers are the sets present on the pull
	// request when the event was emitted.
	InitialLabels    []string
	InitialReviewers []model.User

	Comment       model.Option[model.ReviewComment]
	CommentAuthor model.Option[model.User]
	Review        model.Option[model.Review]
	ReviewAuthor  model.Option[model.User]

	Changes []model.FieldChange
}

// Key returns the routing key of the event.
func (e *Event) Key() Key {
	return Key{Type: e.Type, Action: e.Action}
}

// Key identifies a (type, action) pair.
type Key struct {
	Type   string
	Action string
}

func (k Key) String() string {
	if k.Action == "" {
		return k.Type
	}
	return k.Type + "/" + k.Action
}
