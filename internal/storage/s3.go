package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config describes an S3-compatible bucket holding a graph.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Prefix scopes every key, so one bucket can hold several graphs.
	Prefix string
}

// S3 implements Provider on an S3-compatible object store.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3 connects to the endpoint and checks that the bucket exists.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: s3 bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("storage: s3 bucket %s: %w", cfg.Bucket, ErrNotFound)
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: cleanKey(cfg.Prefix)}, nil
}

func (s *S3) key(p string) string {
	return JoinPath(s.prefix, cleanKey(p))
}

func (s *S3) folder(p string) string {
	if k := s.key(p); k != "" {
		return k + "/"
	}
	return ""
}

func wrapS3(op, p string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("storage: %s %s: %w", op, p, ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, p, err)
}

// ReadObjectAsString returns the content of an object.
func (s *S3) ReadObjectAsString(ctx context.Context, p string) (string, error) {
	rc, err := s.GetReadableStream(ctx, p, nil)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", wrapS3("read", p, err)
	}
	return string(data), nil
}

// GetReadableStream opens an object, optionally restricted to rng.
func (s *S3) GetReadableStream(ctx context.Context, p string, rng *Range) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if rng != nil {
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, fmt.Errorf("storage: range %s: %w", p, err)
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(p), opts)
	if err != nil {
		return nil, wrapS3("open", p, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, wrapS3("open", p, err)
	}
	return obj, nil
}

// WriteObject replaces an object.
func (s *S3) WriteObject(ctx context.Context, p string, data string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(p), strings.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return wrapS3("write", p, err)
	}
	return nil
}

// WriteObjectFromReadable streams r into an object of unknown length.
func (s *S3) WriteObjectFromReadable(ctx context.Context, p string, r io.Reader) (int64, error) {
	info, err := s.client.PutObject(ctx, s.bucket, s.key(p), r, -1, minio.PutObjectOptions{})
	if err != nil {
		return 0, wrapS3("write", p, err)
	}
	return info.Size, nil
}

// RemoveObject deletes an object.
func (s *S3) RemoveObject(ctx context.Context, p string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{}); err != nil {
		return wrapS3("delete", p, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(p), minio.RemoveObjectOptions{}); err != nil {
		return wrapS3("delete", p, err)
	}
	return nil
}

// ListDirectory returns the direct children of a folder.
func (s *S3) ListDirectory(ctx context.Context, p string) ([]string, error) {
	prefix := s.folder(p)
	names := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, wrapS3("list", p, obj.Err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 && cleanKey(p) != "" {
		return nil, fmt.Errorf("storage: list %s: %w", p, ErrNotFound)
	}
	return names, nil
}

// GetFileSize returns the size of an object.
func (s *S3) GetFileSize(ctx context.Context, p string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err != nil {
		return 0, wrapS3("stat", p, err)
	}
	return info.Size, nil
}

// GetFolderSize sums the sizes of all objects below a folder.
func (s *S3) GetFolderSize(ctx context.Context, p string) (int64, error) {
	var total, count int64
	opts := minio.ListObjectsOptions{Prefix: s.folder(p), Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return 0, wrapS3("folder size", p, obj.Err)
		}
		total += obj.Size
		count++
	}
	if count == 0 && cleanKey(p) != "" {
		return 0, fmt.Errorf("storage: folder size %s: %w", p, ErrNotFound)
	}
	return total, nil
}

// JoinPath joins path segments.
func (s *S3) JoinPath(segments ...string) string {
	return JoinPath(segments...)
}
