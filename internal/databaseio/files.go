package databaseio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/starford/neno/internal/apperr"
	"github.com/starford/neno/internal/storage"
)

func (e *Engine) filePath(fileID string) string {
	return e.provider.JoinPath(FilesDir, fileID)
}

func wrapFileErr(op, fileID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("databaseio: %s %s: %w", op, fileID, apperr.ErrFileNotFound)
	}
	return fmt.Errorf("databaseio: %s %s: %w", op, fileID, err)
}

// AddFile stores an attachment blob and returns its size.
func (e *Engine) AddFile(ctx context.Context, fileID string, r io.Reader) (int64, error) {
	n, err := e.provider.WriteObjectFromReadable(ctx, e.filePath(fileID), r)
	if err != nil {
		return 0, fmt.Errorf("databaseio: add file %s: %w", fileID, err)
	}
	return n, nil
}

// DeleteFile removes an attachment blob.
func (e *Engine) DeleteFile(ctx context.Context, fileID string) error {
	if err := e.provider.RemoveObject(ctx, e.filePath(fileID)); err != nil {
		return wrapFileErr("delete file", fileID, err)
	}
	return nil
}

// GetReadableFileStream opens an attachment, optionally restricted to rng.
func (e *Engine) GetReadableFileStream(ctx context.Context, fileID string, rng *storage.Range) (io.ReadCloser, error) {
	rc, err := e.provider.GetReadableStream(ctx, e.filePath(fileID), rng)
	if err != nil {
		return nil, wrapFileErr("open file", fileID, err)
	}
	return rc, nil
}

// GetFileSize returns the size of an attachment.
func (e *Engine) GetFileSize(ctx context.Context, fileID string) (int64, error) {
	n, err := e.provider.GetFileSize(ctx, e.filePath(fileID))
	if err != nil {
		return 0, wrapFileErr("file size", fileID, err)
	}
	return n, nil
}

// GetFiles lists the stored attachment IDs. A missing files folder is empty.
func (e *Engine) GetFiles(ctx context.Context) ([]string, error) {
	names, err := e.provider.ListDirectory(ctx, FilesDir)
	if errors.Is(err, storage.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("databaseio: list files: %w", err)
	}
	return names, nil
}

// GetSizeOfGraph returns the size of everything stored for the graph,
// attachments included.
func (e *Engine) GetSizeOfGraph(ctx context.Context) (int64, error) {
	n, err := e.provider.GetFolderSize(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("databaseio: graph size: %w", err)
	}
	return n, nil
}

// GetSizeOfGraphFiles returns the size of all attachments. A missing files
// folder counts as zero.
func (e *Engine) GetSizeOfGraphFiles(ctx context.Context) (int64, error) {
	n, err := e.provider.GetFolderSize(ctx, FilesDir)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("databaseio: files size: %w", err)
	}
	return n, nil
}

// GetReadableGraphStream returns graph.json, or with withFiles a zip archive
// of the whole graph root. Archives need a provider implementing
// storage.Archiver.
func (e *Engine) GetReadableGraphStream(ctx context.Context, withFiles bool) (io.ReadCloser, error) {
	if !withFiles {
		rc, err := e.provider.GetReadableStream(ctx, MetadataFile, nil)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("databaseio: graph stream: %w", apperr.ErrGraphNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("databaseio: graph stream: %w", err)
		}
		return rc, nil
	}

	archiver, ok := e.provider.(storage.Archiver)
	if !ok {
		return nil, fmt.Errorf("databaseio: graph archive: %w", apperr.ErrNotSupportedByStorageProvider)
	}
	rc, err := archiver.GetArchiveStreamOfFolder(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("databaseio: graph archive: %w", err)
	}
	return rc, nil
}
