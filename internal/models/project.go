package models

import "time"

// Project identifies one tracked website within the workspace. The slug is
// derived from the root URL and is stable for the project's lifetime.
type Project struct {
	Slug        string    `json:"slug"`
	RootURL     string    `json:"root_url"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}
