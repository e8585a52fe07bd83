package model

import "time"

// ReviewComment is an inline comment left on a pull request diff.
type ReviewComment struct {
	ID        int64     `json:"id"`
	ReviewID  int64     `json:"reviewId"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedOn time.Time `json:"createdOn"`
	UpdatedOn time.Time `json:"updatedOn"`
	Edited    bool      `json:"edited"`
	APIURL    string    `json:"apiUrl"`
	File      string    `json:"file"`
	Commit    string    `json:"commit"`
}

// Review is a submitted review, folded into its pull request.
type Review struct {
	ID                int64     `json:"id"`
	User              string    `json:"user"`
	Message           string    `json:"message"`
	State             string    `json:"state"`
	CreatedOn         time.Time `json:"createdOn"`
	Commit            string    `json:"commit"`
	AuthorAssociation string    `json:"authorAssociation"`
}

// CommentEdited reports whether a comment was edited after creation.
func CommentEdited(created, updated time.Time) bool {
	return !created.Equal(updated)
}
