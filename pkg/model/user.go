package model

// User is a GitHub account, either a person or an organization.
type User struct {
	Username     string `json:"username"`
	URL          string `json:"url"`
	Avatar       string `json:"avatar"`
	Organization bool   `json:"organization"`
}

// Repository is keyed by its "owner/name" full name.
type Repository struct {
	Fullname     string         `json:"fullname"`
	Name         string         `json:"name"`
	URL          string         `json:"url"`
	Organization Option[string] `json:"organization"`
}
