package engine

import (
	"fmt"

	"achievibit/pkg/event"
	"achievibit/pkg/model"
)

// Normalizer is the Handler used for every provider whose adapter produces
// event.Event values. It does no I/O.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

var _ Handler = (*Normalizer)(nil)

// NewConnection registers the repository a webhook was installed on.
// Organization hooks ping without a repository.
func (n *Normalizer) NewConnection(evt *event.Event) ([]Intent, error) {
	repo, ok := evt.Repository.Get()
	if !ok {
		if evt.Type == "ping" {
			return nil, event.Ignored(evt.Key(), "no repository")
		}
		return nil, event.Malformed("repository")
	}
	return []Intent{CreateRepository{Repository: repo}}, nil
}

// PullRequestOpened creates the pull request and applies the labels,
// assignees and reviewers it was opened with.
func (n *Normalizer) PullRequestOpened(evt *event.Event) ([]Intent, error) {
	pr, intents, err := n.prelude(evt)
	if err != nil {
		return nil, err
	}
	intents = append(intents, CreatePullRequest{PullRequest: pr})

	for _, label := range unique(evt.InitialLabels) {
		intents = append(intents, AddToSet{ID: pr.PRID, Field: model.SetLabels, Value: label})
	}
	if len(evt.Assignees) > 0 {
		intents = append(intents, assigneeIntents(pr.PRID, evt.Assignees)...)
	}
	for _, reviewer := range evt.InitialReviewers {
		intents = append(intents,
			UpsertUser{User: reviewer},
			AddToSet{ID: pr.PRID, Field: model.SetReviewers, Value: reviewer.Username},
		)
	}
	return intents, nil
}

// PullRequestLabeled adds the event's label.
func (n *Normalizer) PullRequestLabeled(evt *event.Event) ([]Intent, error) {
	return n.labelChange(evt, true)
}

// PullRequestUnlabeled removes the event's label.
func (n *Normalizer) PullRequestUnlabeled(evt *event.Event) ([]Intent, error) {
	return n.labelChange(evt, false)
}

func (n *Normalizer) labelChange(evt *event.Event, add bool) ([]Intent, error) {
	if evt.Label == "" {
		return nil, event.Malformed("label")
	}
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	if add {
		return append(intents, AddToSet{ID: pr.PRID, Field: model.SetLabels, Value: evt.Label}), nil
	}
	return append(intents, RemoveFromSet{ID: pr.PRID, Field: model.SetLabels, Value: evt.Label}), nil
}

// PullRequestEdited overwrites title and description and records the
// provider's change set.
func (n *Normalizer) PullRequestEdited(evt *event.Event) ([]Intent, error) {
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	patch := model.PullRequestPatch{
		Title:       model.Some(pr.Title),
		Description: model.Some(pr.Description),
		Changes:     evt.Changes,
	}
	return append(intents, PatchPullRequest{ID: pr.PRID, Patch: patch}), nil
}

// PullRequestAssigned replaces the assignee set with the payload's list.
func (n *Normalizer) PullRequestAssigned(evt *event.Event) ([]Intent, error) {
	return n.assigneeChange(evt)
}

// PullRequestUnassigned replaces the assignee set with the payload's list.
func (n *Normalizer) PullRequestUnassigned(evt *event.Event) ([]Intent, error) {
	return n.assigneeChange(evt)
}

func (n *Normalizer) assigneeChange(evt *event.Event) ([]Intent, error) {
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	return append(intents, assigneeIntents(pr.PRID, evt.Assignees)...), nil
}

// ReviewRequested adds the requested reviewer.
func (n *Normalizer) ReviewRequested(evt *event.Event) ([]Intent, error) {
	return n.reviewerChange(evt, true)
}

// ReviewRequestRemoved flags the reviewer as removed.
func (n *Normalizer) ReviewRequestRemoved(evt *event.Event) ([]Intent, error) {
	return n.reviewerChange(evt, false)
}

func (n *Normalizer) reviewerChange(evt *event.Event, add bool) ([]Intent, error) {
	reviewer, ok := evt.RequestedReviewer.Get()
	if !ok {
		if evt.RequestedTeam != "" {
			return nil, event.Ignored(evt.Key(), "team review request")
		}
		return nil, event.Malformed("requested_reviewer")
	}
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	intents = append(intents, UpsertUser{User: reviewer})
	if add {
		return append(intents, AddToSet{ID: pr.PRID, Field: model.SetReviewers, Value: reviewer.Username}), nil
	}
	return append(intents, RemoveFromSet{ID: pr.PRID, Field: model.SetReviewers, Value: reviewer.Username}), nil
}

// ReviewCommentCreated appends the comment.
func (n *Normalizer) ReviewCommentCreated(evt *event.Event) ([]Intent, error) {
	return n.commentUpsert(evt)
}

// ReviewCommentEdited replaces the comment's fields.
func (n *Normalizer) ReviewCommentEdited(evt *event.Event) ([]Intent, error) {
	return n.commentUpsert(evt)
}

func (n *Normalizer) commentUpsert(evt *event.Event) ([]Intent, error) {
	comment, ok := evt.Comment.Get()
	if !ok {
		return nil, event.Malformed("comment")
	}
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	if author, ok := evt.CommentAuthor.Get(); ok {
		intents = append(intents, UpsertUser{User: author})
	}
	return append(intents, UpsertReviewComment{ID: pr.PRID, Comment: comment}), nil
}

// ReviewCommentDeleted removes the comment by id.
func (n *Normalizer) ReviewCommentDeleted(evt *event.Event) ([]Intent, error) {
	comment, ok := evt.Comment.Get()
	if !ok {
		return nil, event.Malformed("comment")
	}
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	return append(intents, RemoveReviewComment{ID: pr.PRID, CommentID: comment.ID}), nil
}

// ReviewSubmitted records the review on the pull request.
func (n *Normalizer) ReviewSubmitted(evt *event.Event) ([]Intent, error) {
	review, ok := evt.Review.Get()
	if !ok {
		return nil, event.Malformed("review")
	}
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	if author, ok := evt.ReviewAuthor.Get(); ok {
		intents = append(intents, UpsertUser{User: author})
	}
	return append(intents, UpsertReview{ID: pr.PRID, Review: review}), nil
}

// PullRequestClosed moves the pull request to its derived status.
func (n *Normalizer) PullRequestClosed(evt *event.Event) ([]Intent, error) {
	pr, intents, err := n.mutation(evt)
	if err != nil {
		return nil, err
	}
	patch := model.PullRequestPatch{Status: model.Some(pr.Status)}
	return append(intents, PatchPullRequest{ID: pr.PRID, Patch: patch}), nil
}

// PullRequestMerged has no implementation. Merges arrive as closed events
// with merged set.
func (n *Normalizer) PullRequestMerged(evt *event.Event) ([]Intent, error) {
	return nil, fmt.Errorf("%w: %s", event.ErrNotImplemented, evt.Key())
}

// prelude validates the entities every pull request event carries and
// returns the canonical pull request plus the intents that must precede any
// pull request write: creator, organization owner, repository.
func (n *Normalizer) prelude(evt *event.Event) (model.PullRequest, []Intent, error) {
	repo, ok := evt.Repository.Get()
	if !ok {
		return model.PullRequest{}, nil, event.Malformed("repository")
	}
	pr, ok := evt.PullRequest.Get()
	if !ok {
		return model.PullRequest{}, nil, event.Malformed("pull_request")
	}
	creator, ok := evt.Creator.Get()
	if !ok {
		return model.PullRequest{}, nil, event.Malformed("pull_request.user")
	}
	if pr.Number <= 0 {
		return model.PullRequest{}, nil, event.Malformed("pull_request.number")
	}

	pr.PRID = model.PRID(repo.Fullname, pr.Number)
	pr.Repository = repo.Fullname
	pr.Creator = creator.Username
	if !pr.Status.Valid() {
		pr.Status = model.StatusOpen
	}
	pr.Labels, pr.Assignees, pr.Reviewers = nil, nil, nil
	pr.ReviewComments, pr.Reviews, pr.Edits = nil, nil, nil

	intents := make([]Intent, 0, 6)
	intents = append(intents, UpsertUser{User: creator})
	if owner, ok := evt.Owner.Get(); ok {
		pr.Organization = model.Some(owner.Username)
		if owner.Username != creator.Username {
			intents = append(intents, UpsertUser{User: owner})
		}
	}
	intents = append(intents, CreateRepository{Repository: repo})
	return pr, intents, nil
}

// mutation is the prelude for events that change an existing pull request.
// The pull request is ensured first so out-of-order deliveries self-heal.
func (n *Normalizer) mutation(evt *event.Event) (model.PullRequest, []Intent, error) {
	pr, intents, err := n.prelude(evt)
	if err != nil {
		return pr, nil, err
	}
	return pr, append(intents, EnsurePullRequest{PullRequest: pr}), nil
}

func assigneeIntents(prid string, assignees []model.User) []Intent {
	intents := make([]Intent, 0, len(assignees)+1)
	usernames := make([]string, 0, len(assignees))
	seen := make(map[string]struct{}, len(assignees))
	for _, assignee := range assignees {
		if _, ok := seen[assignee.Username]; ok {
			continue
		}
		seen[assignee.Username] = struct{}{}
		usernames = append(usernames, assignee.Username)
		intents = append(intents, UpsertUser{User: assignee})
	}
	return append(intents, ReplaceSet{ID: prid, Field: model.SetAssignees, Values: usernames})
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
