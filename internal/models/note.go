// Package models defines the domain types of the note store.
package models

import "time"

// DefaultContentType is the content type of notes written in subwaytext.
const DefaultContentType = "text/subtext"

// NoteMeta holds the metadata of a stored note.
type NoteMeta struct {
	Slug        string            `json:"slug"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Custom      map[string]string `json:"custom"`
	Flags       []string          `json:"flags"`
	ContentType string            `json:"contentType"`
}

// ExistingNote is a note that has been assigned a slug. Content is the single
// source of truth; titles, links and blocks are derived from it.
type ExistingNote struct {
	Meta    NoteMeta `json:"meta"`
	Content string   `json:"content"`
}

// HasFlag reports whether the note carries exactly the given flag.
func (n *ExistingNote) HasFlag(flag string) bool {
	for _, f := range n.Meta.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Now returns the current time truncated to the millisecond precision of the
// note file format.
func Now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}
