// Package apperr defines the error taxonomy reported by the note store.
package apperr

import "errors"

var (
	ErrNoteNotFound                  = errors.New("NOTE_NOT_FOUND")
	ErrFileNotFound                  = errors.New("FILE_NOT_FOUND")
	ErrGraphNotFound                 = errors.New("GRAPH_NOT_FOUND")
	ErrNotSupportedByStorageProvider = errors.New("NOT_SUPPORTED_BY_STORAGE_PROVIDER")
	ErrInvalidNoteStructure          = errors.New("INVALID_NOTE_STRUCTURE")
	ErrAlreadyExists                 = errors.New("ALREADY_EXISTS")
	ErrConflict                      = errors.New("CONFLICT")
	ErrInvalidInput                  = errors.New("INVALID_INPUT")
)
