package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Storage publishes finished artifacts.
type Storage interface {
	// Upload stores the file at path under key and returns its public URL.
	Upload(ctx context.Context, key, path, contentType string) (url string, err error)
}

// ArtifactKey names an artifact of a job, e.g. audio/01J...wav.
func ArtifactKey(kind, jobID, ext string) string {
	return kind + "/" + jobID + ext
}

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage uploads artifacts to a bucket served behind a CDN.
type S3Storage struct {
	client     S3API
	bucket     string
	cdnBaseURL string // e.g. "https://podcasts.example.com"
}

// NewS3Storage creates an S3 storage handler.
func NewS3Storage(client S3API, bucket, cdnBaseURL string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, cdnBaseURL: strings.TrimRight(cdnBaseURL, "/")}
}

func (s *S3Storage) Upload(ctx context.Context, key, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	if s.cdnBaseURL == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	}
	return s.cdnBaseURL + "/" + key, nil
}

// LocalStorage copies artifacts into a directory.
type LocalStorage struct {
	dir     string
	baseURL string // prefix for returned URLs; file paths when empty
}

// NewLocalStorage creates a directory-backed storage.
func NewLocalStorage(dir, baseURL string) *LocalStorage {
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStorage) Upload(_ context.Context, key, path, _ string) (string, error) {
	dest := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := copyFile(path, dest); err != nil {
		return "", err
	}
	if s.baseURL == "" {
		return dest, nil
	}
	return s.baseURL + "/" + key, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}
