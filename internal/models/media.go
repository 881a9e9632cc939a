package models

import (
	"path"
	"strings"
)

// MediaType classifies attachments by their file extension.
type MediaType string

// Media types.
const (
	MediaImage MediaType = "image"
	MediaPDF   MediaType = "pdf"
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
	MediaText  MediaType = "text"
	MediaOther MediaType = "other"
)

var mediaByExt = map[string]MediaType{
	".png": MediaImage, ".jpg": MediaImage, ".jpeg": MediaImage, ".gif": MediaImage,
	".webp": MediaImage, ".svg": MediaImage, ".avif": MediaImage,
	".pdf": MediaPDF,
	".mp3": MediaAudio, ".flac": MediaAudio, ".m4a": MediaAudio, ".ogg": MediaAudio,
	".opus": MediaAudio, ".wav": MediaAudio,
	".mp4": MediaVideo, ".webm": MediaVideo, ".mov": MediaVideo, ".mkv": MediaVideo,
	".txt": MediaText, ".md": MediaText, ".csv": MediaText, ".json": MediaText,
	".js": MediaText, ".go": MediaText, ".subtext": MediaText,
}

// MediaTypeOf returns the media type of a file name or file ID.
func MediaTypeOf(name string) MediaType {
	if t, ok := mediaByExt[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return MediaOther
}
