package engine

import "achievibit/pkg/model"

// Kind names a store operation.
type Kind string

const (
	KindUpsertUser          Kind = "upsert_user"
	KindCreateRepository    Kind = "create_repository"
	KindCreatePullRequest   Kind = "create_pull_request"
	KindEnsurePullRequest   Kind = "ensure_pull_request"
	KindPatchPullRequest    Kind = "patch_pull_request"
	KindAddToSet            Kind = "add_to_set"
	KindRemoveFromSet       Kind = "remove_from_set"
	KindReplaceSet          Kind = "replace_set"
	KindUpsertReviewComment Kind = "upsert_review_comment"
	KindRemoveReviewComment Kind = "remove_review_comment"
	KindUpsertReview        Kind = "upsert_review"
)

// Intent describes one idempotent store operation. Intents are data; the
// ingest executor applies them in order.
type Intent interface {
	Kind() Kind
	// PRID returns the pull request the intent is scoped to, or "".
	PRID() string
}

// UpsertUser creates the user or overwrites its profile fields.
type UpsertUser struct {
	User model.User
}

// CreateRepository creates the repository if it does not exist.
type CreateRepository struct {
	Repository model.Repository
}

// CreatePullRequest creates the pull request if it does not exist.
type CreatePullRequest struct {
	PullRequest model.PullRequest
}

// EnsurePullRequest creates the pull request from the current event when it is
// not yet known, before a mutation is applied to it.
type EnsurePullRequest struct {
	PullRequest model.PullRequest
}

// PatchPullRequest overwrites scalar fields.
type PatchPullRequest struct {
	ID    string
	Patch model.PullRequestPatch
}

// AddToSet adds value to a set field.
type AddToSet struct {
	ID    string
	Field model.SetField
	Value string
}

// RemoveFromSet removes value from a set field.
type RemoveFromSet struct {
	ID    string
	Field model.SetField
	Value string
}

// ReplaceSet overwrites a set field with values.
type ReplaceSet struct {
	ID     string
	Field  model.SetField
	Values []string
}

// UpsertReviewComment inserts or replaces a review comment by id.
type UpsertReviewComment struct {
	ID      string
	Comment model.ReviewComment
}

// RemoveReviewComment deletes a review comment by id.
type RemoveReviewComment struct {
	ID        string
	CommentID int64
}

// UpsertReview inserts or replaces a submitted review by id.
type UpsertReview struct {
	ID     string
	Review model.Review
}

func (UpsertUser) Kind() Kind          { return KindUpsertUser }
func (CreateRepository) Kind() Kind    { return KindCreateRepository }
func (CreatePullRequest) Kind() Kind   { return KindCreatePullRequest }
func (EnsurePullRequest) Kind() Kind   { return KindEnsurePullRequest }
func (PatchPullRequest) Kind() Kind    { return KindPatchPullRequest }
func (AddToSet) Kind() Kind            { return KindAddToSet }
func (RemoveFromSet) Kind() Kind       { return KindRemoveFromSet }
func (ReplaceSet) Kind() Kind          { return KindReplaceSet }
func (UpsertReviewComment) Kind() Kind { return KindUpsertReviewComment }
func (RemoveReviewComment) Kind() Kind { return KindRemoveReviewComment }
func (UpsertReview) Kind() Kind        { return KindUpsertReview }

func (UpsertUser) PRID() string            { return "" }
func (CreateRepository) PRID() string      { return "" }
func (i CreatePullRequest) PRID() string   { return i.PullRequest.PRID }
func (i EnsurePullRequest) PRID() string   { return i.PullRequest.PRID }
func (i PatchPullRequest) PRID() string    { return i.ID }
func (i AddToSet) PRID() string            { return i.ID }
func (i RemoveFromSet) PRID() string       { return i.ID }
func (i ReplaceSet) PRID() string          { return i.ID }
func (i UpsertReviewComment) PRID() string { return i.ID }
func (i RemoveReviewComment) PRID() string { return i.ID }
func (i UpsertReview) PRID() string        { return i.ID }

// ScopedPRID returns the single pull request the intents touch, or "".
func ScopedPRID(intents []Intent) string {
	for _, intent := range intents {
		if id := intent.PRID(); id != "" {
			return id
		}
	}
	return ""
}
