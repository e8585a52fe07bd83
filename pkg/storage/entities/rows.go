package entities

import (
	"time"

	"achievibit/pkg/model"
)

type user struct {
	Username     string    `gorm:"column:username;size:255;primaryKey"`
	URL          string    `gorm:"column:url;size:512"`
	Avatar       string    `gorm:"column:avatar;size:512"`
	Organization bool      `gorm:"column:organization;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type repository struct {
	Fullname     string    `gorm:"column:fullname;size:255;primaryKey"`
	Name         string    `gorm:"column:name;size:255"`
	URL          string    `gorm:"column:url;size:512"`
	Organization *string   `gorm:"column:organization;size:255"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

type pullRequest struct {
	PRID         string    `gorm:"column:prid;size:300;primaryKey"`
	Title        string    `gorm:"column:title;type:text"`
	Description  string    `gorm:"column:description;type:text"`
	Number       int       `gorm:"column:number;not null"`
	Creator      string    `gorm:"column:creator;size:255;index"`
	Organization *string   `gorm:"column:organization;size:255"`
	CreatedOn    time.Time `gorm:"column:created_on"`
	URL          string    `gorm:"column:url;size:512"`
	Repository   string    `gorm:"column:repository;size:255;index"`
	Status       string    `gorm:"column:status;size:16;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type pullRequestLabel struct {
	PRID string `gorm:"column:prid;size:300;primaryKey"`
	Name string `gorm:"column:name;size:255;primaryKey"`
}

type pullRequestAssignee struct {
	PRID     string `gorm:"column:prid;size:300;primaryKey"`
	Username string `gorm:"column:username;size:255;primaryKey"`
	Position int    `gorm:"column:position"`
}

type pullRequestReviewer struct {
	PRID     string `gorm:"column:prid;size:300;primaryKey"`
	Username string `gorm:"column:username;size:255;primaryKey"`
	Removed  bool   `gorm:"column:removed;not null;default:false"`
}

type reviewComment struct {
	PRID      string    `gorm:"column:prid;size:300;primaryKey"`
	CommentID int64     `gorm:"column:comment_id;primaryKey;autoIncrement:false"`
	ReviewID  int64     `gorm:"column:review_id"`
	Author    string    `gorm:"column:author;size:255"`
	Message   string    `gorm:"column:message;type:text"`
	CreatedOn time.Time `gorm:"column:created_on"`
	UpdatedOn time.Time `gorm:"column:updated_on"`
	Edited    bool      `gorm:"column:edited"`
	APIURL    string    `gorm:"column:api_url;size:512"`
	File      string    `gorm:"column:file;size:1024"`
	Commit    string    `gorm:"column:commit_sha;size:64"`
}

type review struct {
	PRID              string    `gorm:"column:prid;size:300;primaryKey"`
	ReviewID          int64     `gorm:"column:review_id;primaryKey;autoIncrement:false"`
	User              string    `gorm:"column:username;size:255"`
	Message           string    `gorm:"column:message;type:text"`
	State             string    `gorm:"column:state;size:32"`
	CreatedOn         time.Time `gorm:"column:created_on"`
	Commit            string    `gorm:"column:commit_sha;size:64"`
	AuthorAssociation string    `gorm:"column:author_association;size:32"`
}

type pullRequestEdit struct {
	ID       uint      `gorm:"column:id;primaryKey;autoIncrement"`
	PRID     string    `gorm:"column:prid;size:300;index"`
	Field    string    `gorm:"column:field;size:32"`
	From     string    `gorm:"column:from_value;type:text"`
	To       string    `gorm:"column:to_value;type:text"`
	EditedOn time.Time `gorm:"column:edited_on"`
}

func allTables() []interface{} {
	return []interface{}{
		&user{},
		&repository{},
		&pullRequest{},
		&pullRequestLabel{},
		&pullRequestAssignee{},
		&pullRequestReviewer{},
		&reviewComment{},
		&review{},
		&pullRequestEdit{},
	}
}

func toUserRow(in model.User) user {
	return user{
		Username:     in.Username,
		URL:          in.URL,
		Avatar:       in.Avatar,
		Organization: in.Organization,
	}
}

func fromUserRow(in user) model.User {
	return model.User{
		Username:     in.Username,
		URL:          in.URL,
		Avatar:       in.Avatar,
		Organization: in.Organization,
	}
}

func toRepositoryRow(in model.Repository) repository {
	return repository{
		Fullname:     in.Fullname,
		Name:         in.Name,
		URL:          in.URL,
		Organization: optionalString(in.Organization),
	}
}

func fromRepositoryRow(in repository) model.Repository {
	return model.Repository{
		Fullname:     in.Fullname,
		Name:         in.Name,
		URL:          in.URL,
		Organization: stringOption(in.Organization),
	}
}

func toPullRequestRow(in model.PullRequest) pullRequest {
	return pullRequest{
		PRID:         in.PRID,
		Title:        in.Title,
		Description:  in.Description,
		Number:       in.Number,
		Creator:      in.Creator,
		Organization: optionalString(in.Organization),
		CreatedOn:    in.CreatedOn.UTC(),
		URL:          in.URL,
		Repository:   in.Repository,
		Status:       string(in.Status),
	}
}

func fromPullRequestRow(in pullRequest) (model.PullRequest, error) {
	status, err := model.ParseStatus(in.Status)
	if err != nil {
		return model.PullRequest{}, err
	}
	return model.PullRequest{
		PRID:         in.PRID,
		Title:        in.Title,
		Description:  in.Description,
		Number:       in.Number,
		Creator:      in.Creator,
		Organization: stringOption(in.Organization),
		CreatedOn:    in.CreatedOn,
		URL:          in.URL,
		Repository:   in.Repository,
		Status:       status,
	}, nil
}

func toCommentRow(prid string, in model.ReviewComment) reviewComment {
	updated := in.UpdatedOn
	if updated.IsZero() {
		updated = in.CreatedOn
	}
	return reviewComment{
		PRID:      prid,
		CommentID: in.ID,
		ReviewID:  in.ReviewID,
		Author:    in.Author,
		Message:   in.Message,
		CreatedOn: in.CreatedOn.UTC(),
		UpdatedOn: updated.UTC(),
		Edited:    in.Edited,
		APIURL:    in.APIURL,
		File:      in.File,
		Commit:    in.Commit,
	}
}

func fromCommentRow(in reviewComment) model.ReviewComment {
	return model.ReviewComment{
		ID:        in.CommentID,
		ReviewID:  in.ReviewID,
		Author:    in.Author,
		Message:   in.Message,
		CreatedOn: in.CreatedOn,
		UpdatedOn: in.UpdatedOn,
		Edited:    in.Edited,
		APIURL:    in.APIURL,
		File:      in.File,
		Commit:    in.Commit,
	}
}

func toReviewRow(prid string, in model.Review) review {
	return review{
		PRID:              prid,
		ReviewID:          in.ID,
		User:              in.User,
		Message:           in.Message,
		State:             in.State,
		CreatedOn:         in.CreatedOn.UTC(),
		Commit:            in.Commit,
		AuthorAssociation: in.AuthorAssociation,
	}
}

func fromReviewRow(in review) model.Review {
	return model.Review{
		ID:                in.ReviewID,
		User:              in.User,
		Message:           in.Message,
		State:             in.State,
		CreatedOn:         in.CreatedOn,
		Commit:            in.Commit,
		AuthorAssociation: in.AuthorAssociation,
	}
}

func optionalString(value model.Option[string]) *string {
	if v, ok := value.Get(); ok {
		return &v
	}
	return nil
}

func stringOption(value *string) model.Option[string] {
	if value == nil {
		return model.None[string]()
	}
	return model.Some(*value)
}
