package model

import (
	"fmt"
	"time"
)

// PullRequest is the canonical projection of a provider pull request.
type PullRequest struct {
	PRID           string          `json:"prid"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Number         int             `json:"number"`
	Creator        string          `json:"creator"`
	Organization   Option[string]  `json:"organization"`
	CreatedOn      time.Time       `json:"createdOn"`
	URL            string          `json:"url"`
	Repository     string          `json:"repository"`
	Status         Status          `json:"status"`
	Labels         []string        `json:"labels"`
	Assignees      []string        `json:"assignees"`
	Reviewers      []Reviewer      `json:"reviewers"`
	ReviewComments []ReviewComment `json:"reviewComments"`
	Reviews        []Review        `json:"reviews"`
	Edits          []Edit          `json:"edits"`
}

// Reviewer is a requested reviewer. Removed reviewers stay in the set, flagged.
type Reviewer struct {
	Username string `json:"username"`
	Removed  bool   `json:"removed"`
}

// FieldChange describes the previous value of an edited field.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
}

// Edit is one recorded change to a pull request's title or description.
type Edit struct {
	Field    string    `json:"field"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	EditedOn time.Time `json:"editedOn"`
}

// Editable pull request fields.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
)

// PRID derives the stable pull request key from the repository full name and number.
func PRID(repoFullname string, number int) string {
	return fmt.Sprintf("%s/pull/%d", repoFullname, number)
}

// HasLabel reports whether the label is in the set.
func (p PullRequest) HasLabel(name string) bool {
	return contains(p.Labels, name)
}

// Reviewer returns the reviewer record for username.
func (p PullRequest) Reviewer(username string) (Reviewer, bool) {
	for _, reviewer := range p.Reviewers {
		if reviewer.Username == username {
			return reviewer, true
		}
	}
	return Reviewer{}, false
}

// ReviewComment returns the comment with the given id.
func (p PullRequest) ReviewComment(id int64) (ReviewComment, bool) {
	for _, comment := range p.ReviewComments {
		if comment.ID == id {
			return comment, true
		}
	}
	return ReviewComment{}, false
}

// Review returns the submitted review with the given id.
func (p PullRequest) Review(id int64) (Review, bool) {
	for _, review := range p.Reviews {
		if review.ID == id {
			return review, true
		}
	}
	return Review{}, false
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// SetField names a set-valued pull request field.
type SetField string

const (
	SetLabels    SetField = "labels"
	SetAssignees SetField = "assignees"
	SetReviewers SetField = "reviewers"
)

// PullRequestPatch lists the scalar fields to overwrite. Absent fields are left alone.
type PullRequestPatch struct {
	Title       Option[string]
	Description Option[string]
	Status      Option[Status]
	// Changes records the previous values reported by the provider.
	Changes []FieldChange
}

// Empty reports whether the patch changes nothing.
func (p PullRequestPatch) Empty() bool {
	return !p.Title.IsSome() && !p.Description.IsSome() && !p.Status.IsSome()
}
