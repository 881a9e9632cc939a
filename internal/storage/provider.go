// Package storage defines the byte-oriented object store a graph lives in.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is wrapped by every provider when an object or folder is absent.
var ErrNotFound = errors.New("storage: not found")

// Range selects bytes Start..End of an object, both inclusive.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// Provider is the interface for graph object operations. All paths are
// slash-separated and relative to the provider root.
type Provider interface {
	// ReadObjectAsString returns the full content of the object at p.
	ReadObjectAsString(ctx context.Context, p string) (string, error)
	// GetReadableStream opens the object at p, optionally restricted to rng.
	GetReadableStream(ctx context.Context, p string, rng *Range) (io.ReadCloser, error)
	// WriteObject replaces the object at p with data.
	WriteObject(ctx context.Context, p string, data string) error
	// WriteObjectFromReadable streams r into the object at p and returns the bytes written.
	WriteObjectFromReadable(ctx context.Context, p string, r io.Reader) (int64, error)
	// RemoveObject deletes the object at p.
	RemoveObject(ctx context.Context, p string) error
	// ListDirectory returns the names of the direct children of folder p.
	ListDirectory(ctx context.Context, p string) ([]string, error)
	// GetFileSize returns the size of the object at p in bytes.
	GetFileSize(ctx context.Context, p string) (int64, error)
	// GetFolderSize returns the summed size of all objects below folder p.
	GetFolderSize(ctx context.Context, p string) (int64, error)
	// JoinPath joins path segments with the provider's separator.
	JoinPath(segments ...string) string
}

// Archiver is an optional Provider capability producing a zip stream of a
// folder. An empty path archives the whole provider root.
type Archiver interface {
	GetArchiveStreamOfFolder(ctx context.Context, p string) (io.ReadCloser, error)
}

// JoinPath joins slash-separated segments. Providers use it for JoinPath.
func JoinPath(segments ...string) string {
	return strings.TrimPrefix(path.Join(segments...), "/")
}

// cleanKey normalises p to a root-relative key; the root is "".
func cleanKey(p string) string {
	k := strings.Trim(path.Clean("/"+p), "/")
	return k
}

type readCloser struct {
	io.Reader
	io.Closer
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
