package storage

import (
	"context"
	"errors"

	"achievibit/pkg/model"
)

var (
	// ErrNotFound is returned when a keyed entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrStatusTransition is returned when a status patch would leave a
	// terminal status.
	ErrStatusTransition = errors.New("status transition not allowed")
)

// EntityStore persists the normalized entities. Every method is idempotent
// under redelivery of the same event, and every pull request mutation is
// applied atomically by the store, never as a read-modify-write by callers.
type EntityStore interface {
	// UpsertUser creates the user or overwrites its profile fields.
	UpsertUser(ctx context.Context, user model.User) error
	// CreateRepository creates the repository if it does not exist.
	CreateRepository(ctx context.Context, repo model.Repository) error
	// CreatePullRequest creates the pull request if it does not exist and
	// reports whether it did.
	CreatePullRequest(ctx context.Context, pr model.PullRequest) (bool, error)
	// PatchPullRequest overwrites the patch's present fields. A status that
	// cannot be reached from the stored one returns ErrStatusTransition.
	PatchPullRequest(ctx context.Context, prid string, patch model.PullRequestPatch) error

	AddToSet(ctx context.Context, prid string, field model.SetField, value string) error
	RemoveFromSet(ctx context.Context, prid string, field model.SetField, value string) error
	ReplaceSet(ctx context.Context, prid string, field model.SetField, values []string) error

	UpsertReviewComment(ctx context.Context, prid string, comment model.ReviewComment) error
	RemoveReviewComment(ctx context.Context, prid string, commentID int64) error
	UpsertReview(ctx context.Context, prid string, review model.Review) error

	FindPullRequest(ctx context.Context, prid string) (*model.PullRequest, error)
	FindUser(ctx context.Context, username string) (*model.User, error)
	FindRepository(ctx context.Context, fullname string) (*model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	ListPullRequests(ctx context.Context, repository string) ([]model.PullRequest, error)

	Close() error
}
