package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/natefinch/atomic"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to graph directory
}

var _ Archiver = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute graph directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the graph root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes graph root: %s", rel)
	}
	return abs, nil
}

func wrapNotExist(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, p, ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, p, err)
}

// ReadObjectAsString returns the content of a graph object.
func (f *FS) ReadObjectAsString(_ context.Context, p string) (string, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", wrapNotExist("read", p, err)
	}
	return string(data), nil
}

// GetReadableStream opens a graph object for reading.
func (f *FS) GetReadableStream(_ context.Context, p string, rng *Range) (io.ReadCloser, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, wrapNotExist("open", p, err)
	}
	if rng == nil {
		return file, nil
	}
	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("storage: seek %s: %w", p, err)
	}
	return readCloser{Reader: io.LimitReader(file, rng.Length()), Closer: file}, nil
}

// WriteObject atomically replaces a graph object.
func (f *FS) WriteObject(ctx context.Context, p string, data string) error {
	_, err := f.WriteObjectFromReadable(ctx, p, strings.NewReader(data))
	return err
}

// WriteObjectFromReadable atomically writes r to a graph object: tmp file,
// fsync, rename.
func (f *FS) WriteObjectFromReadable(_ context.Context, p string, r io.Reader) (int64, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}
	cr := &countingReader{r: r}
	if err := atomic.WriteFile(abs, cr); err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", p, err)
	}
	return cr.n, nil
}

// RemoveObject deletes a graph object.
func (f *FS) RemoveObject(_ context.Context, p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrapNotExist("delete", p, err)
	}
	return nil
}

// ListDirectory returns the entry names of a folder.
func (f *FS) ListDirectory(_ context.Context, p string) ([]string, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapNotExist("list", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// GetFileSize returns the size of a graph object.
func (f *FS) GetFileSize(_ context.Context, p string) (int64, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, wrapNotExist("stat", p, err)
	}
	return info.Size(), nil
}

// GetFolderSize walks a folder and sums the sizes of its files.
func (f *FS) GetFolderSize(_ context.Context, p string) (int64, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return 0, err
	}
	var total int64
	err = filepath.WalkDir(abs, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, wrapNotExist("folder size", p, err)
	}
	return total, nil
}

// JoinPath joins path segments.
func (f *FS) JoinPath(segments ...string) string {
	return JoinPath(segments...)
}

// GetArchiveStreamOfFolder streams a zip archive of folder p. Archive errors
// surface as read errors on the returned stream.
func (f *FS) GetArchiveStreamOfFolder(_ context.Context, p string) (io.ReadCloser, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, wrapNotExist("archive", p, err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeZip(pw, abs))
	}()
	return pr, nil
}

func writeZip(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		dst, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("storage: archive: %w", err)
	}
	return zw.Close()
}
