package engine

import (
	"errors"
	"testing"

	"achievibit/pkg/event"
	"achievibit/pkg/model"

	"github.com/stretchr/testify/require"
)

func openedEvent() *event.Event {
	return &event.Event{
		Provider: "github",
		Type:     "pull_request",
		Action:   "opened",
		Repository: model.Some(model.Repository{
			Fullname:     "org/repo",
			Name:         "repo",
			Organization: model.Some("org"),
		}),
		Owner:   model.Some(model.User{Username: "org", Organization: true}),
		Creator: model.Some(model.User{Username: "alice"}),
		PullRequest: model.Some(model.PullRequest{
			Number: 5,
			Title:  "Fix bug",
			Status: model.StatusOpen,
		}),
	}
}

func kinds(intents []Intent) []Kind {
	out := make([]Kind, 0, len(intents))
	for _, intent := range intents {
		out = append(out, intent.Kind())
	}
	return out
}

func TestOpenedCreatesEntitiesInOrder(t *testing.T) {
	intents, err := NewRouter(NewNormalizer()).Route(openedEvent())
	require.NoError(t, err)
	require.Equal(t, []Kind{
		KindUpsertUser,
		KindUpsertUser,
		KindCreateRepository,
		KindCreatePullRequest,
	}, kinds(intents))

	require.Equal(t, "alice", intents[0].(UpsertUser).User.Username)
	org := intents[1].(UpsertUser).User
	require.Equal(t, "org", org.Username)
	require.True(t, org.Organization)

	pr := intents[3].(CreatePullRequest).PullRequest
	require.Equal(t, "org/repo/pull/5", pr.PRID)
	require.Equal(t, model.StatusOpen, pr.Status)
	require.Equal(t, "alice", pr.Creator)
	require.Equal(t, "org/repo", pr.Repository)
	require.Equal(t, "org", pr.Organization.OrElse(""))
}

func TestOpenedAppliesInitialSets(t *testing.T) {
	evt := openedEvent()
	evt.InitialLabels = []string{"bug", "bug", "ui"}
	evt.Assignees = []model.User{{Username: "bob"}}
	evt.InitialReviewers = []model.User{{Username: "carol"}}

	intents, err := NewNormalizer().PullRequestOpened(evt)
	require.NoError(t, err)
	require.Equal(t, []Kind{
		KindUpsertUser, KindUpsertUser, KindCreateRepository, KindCreatePullRequest,
		KindAddToSet, KindAddToSet,
		KindUpsertUser, KindReplaceSet,
		KindUpsertUser, KindAddToSet,
	}, kinds(intents))
	require.Equal(t, []string{"bob"}, intents[7].(ReplaceSet).Values)
	require.Equal(t, model.SetReviewers, intents[9].(AddToSet).Field)
}

func TestMutationsEnsurePullRequestFirst(t *testing.T) {
	evt := openedEvent()
	evt.Action = "labeled"
	evt.Label = "bug"

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Equal(t, []Kind{
		KindUpsertUser, KindUpsertUser, KindCreateRepository, KindEnsurePullRequest, KindAddToSet,
	}, kinds(intents))
	add := intents[4].(AddToSet)
	require.Equal(t, "org/repo/pull/5", add.ID)
	require.Equal(t, model.SetLabels, add.Field)
	require.Equal(t, "bug", add.Value)
}

func TestUnlabeledRemovesLabel(t *testing.T) {
	evt := openedEvent()
	evt.Action = "unlabeled"
	evt.Label = "bug"

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	remove, ok := intents[len(intents)-1].(RemoveFromSet)
	require.True(t, ok)
	require.Equal(t, "bug", remove.Value)
}

func TestAssigneesReplaceWholeSet(t *testing.T) {
	for _, action := range []string{"assigned", "unassigned"} {
		evt := openedEvent()
		evt.Action = action
		evt.Assignees = []model.User{{Username: "bob"}, {Username: "dave"}, {Username: "bob"}}

		intents, err := NewRouter(NewNormalizer()).Route(evt)
		require.NoError(t, err)
		replace, ok := intents[len(intents)-1].(ReplaceSet)
		require.True(t, ok, action)
		require.Equal(t, model.SetAssignees, replace.Field)
		require.Equal(t, []string{"bob", "dave"}, replace.Values)
	}

	evt := openedEvent()
	evt.Action = "unassigned"
	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Empty(t, intents[len(intents)-1].(ReplaceSet).Values)
}

func TestReviewRequests(t *testing.T) {
	evt := openedEvent()
	evt.Action = "review_request_removed"
	evt.RequestedReviewer = model.Some(model.User{Username: "carol"})

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Equal(t, KindUpsertUser, intents[len(intents)-2].Kind())
	remove := intents[len(intents)-1].(RemoveFromSet)
	require.Equal(t, model.SetReviewers, remove.Field)
	require.Equal(t, "carol", remove.Value)

	evt.RequestedReviewer = model.None[model.User]()
	evt.RequestedTeam = "core"
	_, err = NewRouter(NewNormalizer()).Route(evt)
	require.True(t, errors.Is(err, event.ErrIgnored))

	evt.RequestedTeam = ""
	_, err = NewRouter(NewNormalizer()).Route(evt)
	require.True(t, errors.Is(err, event.ErrMalformedPayload))
}

func TestEditedPatchesTitleAndDescription(t *testing.T) {
	evt := openedEvent()
	evt.Action = "edited"
	evt.Changes = []model.FieldChange{{Field: model.FieldTitle, From: "old"}}

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	patch := intents[len(intents)-1].(PatchPullRequest).Patch
	require.Equal(t, "Fix bug", patch.Title.OrElse(""))
	require.True(t, patch.Description.IsSome())
	require.False(t, patch.Status.IsSome())
	require.Equal(t, evt.Changes, patch.Changes)
}

func TestClosedPatchesDerivedStatus(t *testing.T) {
	evt := openedEvent()
	evt.Action = "closed"
	pr, _ := evt.PullRequest.Get()
	pr.Status = model.StatusMerged
	evt.PullRequest = model.Some(pr)

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	ensure := intents[3].(EnsurePullRequest)
	require.Equal(t, model.StatusMerged, ensure.PullRequest.Status)
	patch := intents[len(intents)-1].(PatchPullRequest).Patch
	require.Equal(t, model.StatusMerged, patch.Status.OrElse(""))
}

func TestReviewCommentIntents(t *testing.T) {
	evt := openedEvent()
	evt.Type = "pull_request_review_comment"
	evt.Action = "created"
	evt.Comment = model.Some(model.ReviewComment{ID: 9, Author: "bob", Message: "nit"})
	evt.CommentAuthor = model.Some(model.User{Username: "bob"})

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Equal(t, KindUpsertUser, intents[len(intents)-2].Kind())
	require.Equal(t, int64(9), intents[len(intents)-1].(UpsertReviewComment).Comment.ID)

	evt.Action = "deleted"
	intents, err = NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Equal(t, int64(9), intents[len(intents)-1].(RemoveReviewComment).CommentID)

	evt.Comment = model.None[model.ReviewComment]()
	_, err = NewRouter(NewNormalizer()).Route(evt)
	require.True(t, errors.Is(err, event.ErrMalformedPayload))
}

func TestReviewSubmitted(t *testing.T) {
	evt := openedEvent()
	evt.Type = "pull_request_review"
	evt.Action = "submitted"
	evt.Review = model.Some(model.Review{ID: 4, User: "carol", State: "approved"})
	evt.ReviewAuthor = model.Some(model.User{Username: "carol"})

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Equal(t, int64(4), intents[len(intents)-1].(UpsertReview).Review.ID)
}

func TestMergedIsNotImplemented(t *testing.T) {
	evt := openedEvent()
	evt.Action = "merged"

	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.Nil(t, intents)
	require.True(t, errors.Is(err, event.ErrNotImplemented))
}

func TestUnknownActionIsIgnored(t *testing.T) {
	evt := openedEvent()
	evt.Action = "synchronize"

	router := NewRouter(NewNormalizer())
	require.False(t, router.Supports(evt.Key()))
	_, err := router.Route(evt)
	require.True(t, errors.Is(err, event.ErrIgnored))
}

func TestMissingEntitiesAreMalformed(t *testing.T) {
	cases := map[string]func(*event.Event){
		"repository":        func(e *event.Event) { e.Repository = model.None[model.Repository]() },
		"pull_request":      func(e *event.Event) { e.PullRequest = model.None[model.PullRequest]() },
		"pull_request.user": func(e *event.Event) { e.Creator = model.None[model.User]() },
	}
	for field, mutate := range cases {
		evt := openedEvent()
		mutate(evt)
		intents, err := NewNormalizer().PullRequestOpened(evt)
		require.Nil(t, intents, field)
		require.True(t, errors.Is(err, event.ErrMalformedPayload), field)
		require.Contains(t, err.Error(), field)
	}

	evt := openedEvent()
	evt.Action = "labeled"
	_, err := NewRouter(NewNormalizer()).Route(evt)
	require.True(t, errors.Is(err, event.ErrMalformedPayload))
}

func TestNewConnection(t *testing.T) {
	evt := &event.Event{Type: "ping", Repository: model.Some(model.Repository{Fullname: "org/repo"})}
	intents, err := NewRouter(NewNormalizer()).Route(evt)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindCreateRepository}, kinds(intents))

	_, err = NewRouter(NewNormalizer()).Route(&event.Event{Type: "ping"})
	require.True(t, errors.Is(err, event.ErrIgnored))

	_, err = NewRouter(NewNormalizer()).Route(&event.Event{Type: "repository", Action: "created"})
	require.True(t, errors.Is(err, event.ErrMalformedPayload))
}

func TestScopedPRID(t *testing.T) {
	intents, err := NewNormalizer().PullRequestOpened(openedEvent())
	require.NoError(t, err)
	require.Equal(t, "org/repo/pull/5", ScopedPRID(intents))
	require.Equal(t, "", ScopedPRID([]Intent{CreateRepository{}}))
}
