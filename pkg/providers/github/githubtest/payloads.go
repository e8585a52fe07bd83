// Package githubtest builds GitHub webhook payloads for tests.
package githubtest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Created is the creation time used when a PR does not set one.
var Created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// PR describes the repository and pull request parts of a payload.
type PR struct {
	Owner     string
	OwnerType string
	Repo      string
	Number    int
	State     string
	Merged    bool
	Title     string
	Body      string
	Creator   string
	Labels    []string
	Assignees []string
	Reviewers []string
	CreatedAt time.Time
}

// Comment describes a review comment.
type Comment struct {
	ID        int64
	ReviewID  int64
	Author    string
	Body      string
	Path      string
	CommitID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Review describes a submitted review.
type Review struct {
	ID    int64
	User  string
	Body  string
	State string
}

// DefaultPR is org/repo#5 opened by alice.
func DefaultPR() PR {
	return PR{
		Owner:     "org",
		OwnerType: "Organization",
		Repo:      "repo",
		Number:    5,
		State:     "open",
		Title:     "Fix bug",
		Body:      "Fixes the bug",
		Creator:   "alice",
	}
}

// User returns a GitHub user object.
func User(login, kind string) map[string]any {
	if kind == "" {
		kind = "User"
	}
	return map[string]any{
		"login":      login,
		"type":       kind,
		"html_url":   "https://github.com/" + login,
		"avatar_url": "https://avatars.githubusercontent.com/" + login,
	}
}

// Repository returns the repository object for pr.
func Repository(pr PR) map[string]any {
	return map[string]any{
		"name":      pr.Repo,
		"full_name": pr.Owner + "/" + pr.Repo,
		"html_url":  "https://github.com/" + pr.Owner + "/" + pr.Repo,
		"owner":     User(pr.Owner, pr.OwnerType),
	}
}

// PullRequest returns the pull_request object for pr.
func PullRequest(pr PR) map[string]any {
	created := pr.CreatedAt
	if created.IsZero() {
		created = Created
	}
	state := pr.State
	if state == "" {
		state = "open"
	}
	labels := make([]any, 0, len(pr.Labels))
	for _, name := range pr.Labels {
		labels = append(labels, map[string]any{"name": name})
	}
	return map[string]any{
		"number":              pr.Number,
		"state":               state,
		"merged":              pr.Merged,
		"title":               pr.Title,
		"body":                pr.Body,
		"html_url":            fmt.Sprintf("https://github.com/%s/%s/pull/%d", pr.Owner, pr.Repo, pr.Number),
		"created_at":          created.Format(time.RFC3339),
		"user":                User(pr.Creator, ""),
		"labels":              labels,
		"assignees":           users(pr.Assignees),
		"requested_reviewers": users(pr.Reviewers),
	}
}

// PullRequestEvent returns a pull_request payload. extra is merged into the
// top level, e.g. "label" or "requested_reviewer".
func PullRequestEvent(action string, pr PR, extra map[string]any) []byte {
	body := map[string]any{
		"action":       action,
		"number":       pr.Number,
		"pull_request": PullRequest(pr),
		"repository":   Repository(pr),
		"sender":       User(pr.Creator, ""),
	}
	for key, value := range extra {
		body[key] = value
	}
	return mustJSON(body)
}

// Label returns the extra field for labeled/unlabeled events.
func Label(name string) map[string]any {
	return map[string]any{"label": map[string]any{"name": name}}
}

// RequestedReviewer returns the extra field for review request events.
func RequestedReviewer(login string) map[string]any {
	return map[string]any{"requested_reviewer": User(login, "")}
}

// ReviewCommentEvent returns a pull_request_review_comment payload.
func ReviewCommentEvent(action string, pr PR, comment Comment) []byte {
	created := comment.CreatedAt
	if created.IsZero() {
		created = Created
	}
	updated := comment.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return mustJSON(map[string]any{
		"action":       action,
		"pull_request": PullRequest(pr),
		"repository":   Repository(pr),
		"comment": map[string]any{
			"id":                     comment.ID,
			"pull_request_review_id": comment.ReviewID,
			"user":                   User(comment.Author, ""),
			"body":                   comment.Body,
			"path":                   comment.Path,
			"commit_id":              comment.CommitID,
			"url":                    fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/comments/%d", pr.Owner, pr.Repo, comment.ID),
			"created_at":             created.Format(time.RFC3339),
			"updated_at":             updated.Format(time.RFC3339),
		},
	})
}

// ReviewEvent returns a pull_request_review payload.
func ReviewEvent(action string, pr PR, review Review) []byte {
	return mustJSON(map[string]any{
		"action":       action,
		"pull_request": PullRequest(pr),
		"repository":   Repository(pr),
		"review": map[string]any{
			"id":                 review.ID,
			"user":               User(review.User, ""),
			"body":               review.Body,
			"state":              review.State,
			"commit_id":          "abc123",
			"author_association": "MEMBER",
			"submitted_at":       Created.Add(time.Hour).Format(time.RFC3339),
		},
	})
}

// Ping returns a ping payload for pr's repository.
func Ping(pr PR) []byte {
	return mustJSON(map[string]any{
		"zen":        "Keep it logically awesome.",
		"hook_id":    1,
		"repository": Repository(pr),
	})
}

// OrganizationPing returns the ping an organization-level hook sends. It has
// no repository.
func OrganizationPing(org string) []byte {
	return mustJSON(map[string]any{
		"zen":          "Design for failure.",
		"hook_id":      2,
		"hook":         map[string]any{"type": "Organization"},
		"organization": map[string]any{"login": org},
		"sender":       User(org, ""),
	})
}

func users(logins []string) []any {
	out := make([]any, 0, len(logins))
	for _, login := range logins {
		out = append(out, User(login, ""))
	}
	return out
}

func mustJSON(value any) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return data
}
