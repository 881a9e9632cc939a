package models

import (
	"encoding/json"
	"time"
)

// ScreenPosition is the persisted view state of the graph canvas.
type ScreenPosition struct {
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
	Scale      float64 `json:"scale"`
}

// NodePosition is a point on the graph canvas.
type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphFile describes an attachment stored with the graph.
type GraphFile struct {
	FileID    string    `json:"fileId"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"-"`
}

type graphFileJSON struct {
	FileID    string `json:"fileId"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"createdAt"`
}

// MarshalJSON encodes CreatedAt as epoch milliseconds.
func (f GraphFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphFileJSON{
		FileID:    f.FileID,
		Name:      f.Name,
		Size:      f.Size,
		CreatedAt: f.CreatedAt.UnixMilli(),
	})
}

// UnmarshalJSON decodes CreatedAt from epoch milliseconds.
func (f *GraphFile) UnmarshalJSON(data []byte) error {
	var raw graphFileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = GraphFile{FileID: raw.FileID, Name: raw.Name, Size: raw.Size, CreatedAt: time.UnixMilli(raw.CreatedAt)}
	return nil
}

// GraphMetadata is persisted as one JSON object per graph.
type GraphMetadata struct {
	CreatedAt           time.Time      `json:"-"`
	UpdatedAt           time.Time      `json:"-"`
	ScreenPosition      ScreenPosition `json:"screenPosition"`
	InitialNodePosition NodePosition   `json:"initialNodePosition"`
	PinnedNotes         []string       `json:"pinnedNotes"`
	Files               []GraphFile    `json:"files"`
}

type graphMetadataJSON struct {
	CreatedAt           int64          `json:"createdAt"`
	UpdatedAt           int64          `json:"updatedAt"`
	ScreenPosition      ScreenPosition `json:"screenPosition"`
	InitialNodePosition NodePosition   `json:"initialNodePosition"`
	PinnedNotes         []string       `json:"pinnedNotes"`
	Files               []GraphFile    `json:"files"`
}

// NewGraphMetadata returns the metadata of a freshly created graph.
func NewGraphMetadata(now time.Time) GraphMetadata {
	return GraphMetadata{
		CreatedAt:      now,
		UpdatedAt:      now,
		ScreenPosition: ScreenPosition{Scale: 1},
		PinnedNotes:    []string{},
		Files:          []GraphFile{},
	}
}

// MarshalJSON encodes timestamps as epoch milliseconds.
func (m GraphMetadata) MarshalJSON() ([]byte, error) {
	raw := graphMetadataJSON{
		CreatedAt:           m.CreatedAt.UnixMilli(),
		UpdatedAt:           m.UpdatedAt.UnixMilli(),
		ScreenPosition:      m.ScreenPosition,
		InitialNodePosition: m.InitialNodePosition,
		PinnedNotes:         m.PinnedNotes,
		Files:               m.Files,
	}
	if raw.PinnedNotes == nil {
		raw.PinnedNotes = []string{}
	}
	if raw.Files == nil {
		raw.Files = []GraphFile{}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes timestamps from epoch milliseconds.
func (m *GraphMetadata) UnmarshalJSON(data []byte) error {
	var raw graphMetadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = GraphMetadata{
		CreatedAt:           time.UnixMilli(raw.CreatedAt),
		UpdatedAt:           time.UnixMilli(raw.UpdatedAt),
		ScreenPosition:      raw.ScreenPosition,
		InitialNodePosition: raw.InitialNodePosition,
		PinnedNotes:         raw.PinnedNotes,
		Files:               raw.Files,
	}
	if m.PinnedNotes == nil {
		m.PinnedNotes = []string{}
	}
	if m.Files == nil {
		m.Files = []GraphFile{}
	}
	return nil
}

// FindFile returns the attachment record with the given ID.
func (m *GraphMetadata) FindFile(fileID string) (GraphFile, bool) {
	for _, f := range m.Files {
		if f.FileID == fileID {
			return f, true
		}
	}
	return GraphFile{}, false
}
