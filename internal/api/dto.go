package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/search"
)

const (
	maxNoteBytes   = 10 << 20
	maxUploadBytes = 512 << 20
	maxSlugRunes   = 200
)

// PutNoteRequest is the body of PUT /notes. The If-Match header carries the
// ETag of the version being replaced.
type PutNoteRequest struct {
	Slug         string            `json:"slug"`
	Content      string            `json:"content"`
	Custom       map[string]string `json:"custom"`
	Flags        []string          `json:"flags"`
	ContentType  string            `json:"contentType"`
	ChangeSlugTo string            `json:"changeSlugTo"`
}

// Validate checks field sizes before the request reaches the service.
func (r *PutNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Slug, validation.RuneLength(0, maxSlugRunes)),
		validation.Field(&r.ChangeSlugTo, validation.RuneLength(0, maxSlugRunes)),
		validation.Field(&r.Flags, validation.Each(validation.Required)),
		validation.Field(&r.ContentType, validation.Length(0, 100)),
	)
}

func (r *PutNoteRequest) toService(ifMatch string) noteservice.PutRequest {
	return noteservice.PutRequest{
		Slug:         r.Slug,
		Content:      r.Content,
		Custom:       r.Custom,
		Flags:        r.Flags,
		ContentType:  r.ContentType,
		IfMatch:      ifMatch,
		ChangeSlugTo: r.ChangeSlugTo,
	}
}

// NoteDetail is the full note response.
type NoteDetail = noteservice.NoteDetail

// NoteListItem is one entry of a note listing.
type NoteListItem = search.NoteListItem

// NoteListResponse is one page of search results.
type NoteListResponse = search.Page

// PinsResponse lists the pinned notes.
type PinsResponse struct {
	Pins []NoteListItem `json:"pins"`
}

// FilesResponse lists the stored attachments.
type FilesResponse struct {
	Files []models.GraphFile `json:"files"`
}
