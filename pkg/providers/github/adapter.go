package github

import (
	"encoding/json"
	"fmt"

	"achievibit/pkg/event"
	"achievibit/pkg/model"

	gh "github.com/google/go-github/v57/github"
)

// Provider is the provider name carried on decoded events.
const Provider = "github"

const organizationType = "Organization"

// Adapter decodes GitHub webhook payloads into provider-neutral events.
type Adapter struct{}

// NewAdapter returns a GitHub Adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Decode parses raw as a delivery of eventType. Payloads that are not valid
// JSON, or that go-github rejects, return event.ErrMalformedPayload.
func (a *Adapter) Decode(eventType, delivery string, raw []byte) (*event.Event, error) {
	evt := &event.Event{Provider: Provider, Type: eventType, Delivery: delivery}

	switch eventType {
	case "pull_request", "pull_request_review", "pull_request_review_comment":
		parsed, err := gh.ParseWebHook(eventType, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", event.ErrMalformedPayload, err)
		}
		switch payload := parsed.(type) {
		case *gh.PullRequestEvent:
			fromPullRequestEvent(evt, payload)
		case *gh.PullRequestReviewEvent:
			fromReviewEvent(evt, payload)
		case *gh.PullRequestReviewCommentEvent:
			fromReviewCommentEvent(evt, payload)
		}
		return evt, nil
	default:
		// ping has no repository field in go-github, and other event types
		// only need their action for routing.
		var envelope struct {
			Action string         `json:"action"`
			Repo   *gh.Repository `json:"repository"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", event.ErrMalformedPayload, err)
		}
		evt.Action = envelope.Action
		evt.Repository = ExtractRepo(envelope.Repo)
		evt.Owner = organizationOwner(envelope.Repo)
		return evt, nil
	}
}

func fromPullRequestEvent(evt *event.Event, payload *gh.PullRequestEvent) {
	evt.Action = payload.GetAction()
	fillPullRequest(evt, payload.GetRepo(), payload.GetPullRequest())
	evt.Label = payload.GetLabel().GetName()
	evt.RequestedReviewer = ExtractUser(payload.GetRequestedReviewer())
	evt.RequestedTeam = payload.GetRequestedTeam().GetSlug()
	evt.Changes = extractChanges(payload.GetChanges())
}

func fromReviewEvent(evt *event.Event, payload *gh.PullRequestReviewEvent) {
	evt.Action = payload.GetAction()
	fillPullRequest(evt, payload.GetRepo(), payload.GetPullRequest())
	evt.Review = ExtractReview(payload.GetReview())
	evt.ReviewAuthor = ExtractUser(payload.GetReview().GetUser())
}

func fromReviewCommentEvent(evt *event.Event, payload *gh.PullRequestReviewCommentEvent) {
	evt.Action = payload.GetAction()
	fillPullRequest(evt, payload.GetRepo(), payload.GetPullRequest())
	evt.Comment = ExtractReviewComment(payload.GetComment())
	evt.CommentAuthor = ExtractUser(payload.GetComment().GetUser())
	evt.Changes = extractChanges(payload.GetChanges())
}

func fillPullRequest(evt *event.Event, repo *gh.Repository, pr *gh.PullRequest) {
	evt.Repository = ExtractRepo(repo)
	evt.Owner = organizationOwner(repo)
	if pr == nil {
		return
	}
	creator := ExtractUser(pr.GetUser())
	evt.Creator = creator

	if canonical, ok := evt.Repository.Get(); ok {
		evt.PullRequest = model.Some(ExtractPullRequest(pr, creator.OrElse(model.User{}), canonical, evt.Owner))
	}
	for _, assignee := range pr.Assignees {
		if user, ok := ExtractUser(assignee).Get(); ok {
			evt.Assignees = append(evt.Assignees, user)
		}
	}
	for _, label := range pr.Labels {
		if name := label.GetName(); name != "" {
			evt.InitialLabels = append(evt.InitialLabels, name)
		}
	}
	for _, reviewer := range pr.RequestedReviewers {
		if user, ok := ExtractUser(reviewer).Get(); ok {
			evt.InitialReviewers = append(evt.InitialReviewers, user)
		}
	}
}

// ExtractUser converts a GitHub account. A nil account or one without a login
// is absent.
func ExtractUser(user *gh.User) model.Option[model.User] {
	if user == nil || user.GetLogin() == "" {
		return model.None[model.User]()
	}
	return model.Some(model.User{
		Username:     user.GetLogin(),
		URL:          user.GetHTMLURL(),
		Avatar:       user.GetAvatarURL(),
		Organization: user.GetType() == organizationType,
	})
}

// ExtractRepo converts a GitHub repository. The organization is set only when
// the owner is an organization account.
func ExtractRepo(repo *gh.Repository) model.Option[model.Repository] {
	if repo == nil || repo.GetFullName() == "" {
		return model.None[model.Repository]()
	}
	out := model.Repository{
		Fullname: repo.GetFullName(),
		Name:     repo.GetName(),
		URL:      repo.GetHTMLURL(),
	}
	if owner := repo.GetOwner(); owner.GetType() == organizationType {
		out.Organization = model.Some(owner.GetLogin())
	}
	return model.Some(out)
}

func organizationOwner(repo *gh.Repository) model.Option[model.User] {
	owner := repo.GetOwner()
	if owner.GetType() != organizationType {
		return model.None[model.User]()
	}
	return ExtractUser(owner)
}

// ExtractPullRequest converts a GitHub pull request that belongs to repo and
// was opened by creator.
func ExtractPullRequest(pr *gh.PullRequest, creator model.User, repo model.Repository, org model.Option[model.User]) model.PullRequest {
	out := model.PullRequest{
		PRID:        model.PRID(repo.Fullname, pr.GetNumber()),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Number:      pr.GetNumber(),
		Creator:     creator.Username,
		CreatedOn:   pr.GetCreatedAt().Time,
		URL:         pr.GetHTMLURL(),
		Repository:  repo.Fullname,
		Status:      DeriveStatus(pr.GetState(), pr.GetMerged()),
	}
	if user, ok := org.Get(); ok {
		out.Organization = model.Some(user.Username)
	}
	return out
}

// DeriveStatus maps GitHub's state and merged flag. Anything that is not
// "open" is merged when the flag is set, closed otherwise.
func DeriveStatus(state string, merged bool) model.Status {
	if state == "open" {
		return model.StatusOpen
	}
	if merged {
		return model.StatusMerged
	}
	return model.StatusClosed
}

// ExtractReviewComment converts an inline review comment.
func ExtractReviewComment(comment *gh.PullRequestComment) model.Option[model.ReviewComment] {
	if comment == nil || comment.GetID() == 0 {
		return model.None[model.ReviewComment]()
	}
	created := comment.GetCreatedAt().Time
	updated := comment.GetUpdatedAt().Time
	if updated.IsZero() {
		updated = created
	}
	return model.Some(model.ReviewComment{
		ID:        comment.GetID(),
		ReviewID:  comment.GetPullRequestReviewID(),
		Author:    comment.GetUser().GetLogin(),
		Message:   comment.GetBody(),
		CreatedOn: created,
		UpdatedOn: updated,
		Edited:    model.CommentEdited(created, updated),
		APIURL:    comment.GetURL(),
		File:      comment.GetPath(),
		Commit:    comment.GetCommitID(),
	})
}

// ExtractReview converts a submitted review.
func ExtractReview(review *gh.PullRequestReview) model.Option[model.Review] {
	if review == nil || review.GetID() == 0 {
		return model.None[model.Review]()
	}
	return model.Some(model.Review{
		ID:                review.GetID(),
		User:              review.GetUser().GetLogin(),
		Message:           review.GetBody(),
		State:             review.GetState(),
		CreatedOn:         review.GetSubmittedAt().Time,
		Commit:            review.GetCommitID(),
		AuthorAssociation: review.GetAuthorAssociation(),
	})
}

func extractChanges(changes *gh.EditChange) []model.FieldChange {
	if changes == nil {
		return nil
	}
	var out []model.FieldChange
	if title := changes.GetTitle(); title != nil {
		out = append(out, model.FieldChange{Field: model.FieldTitle, From: title.GetFrom()})
	}
	if body := changes.GetBody(); body != nil {
		out = append(out, model.FieldChange{Field: model.FieldDescription, From: body.GetFrom()})
	}
	return out
}
