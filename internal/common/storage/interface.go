package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the object storage operations used to offload oversized responses.
// It is small so MinIO and other S3-compatible backends can be swapped without touching callers.
type BlobStore interface {
	// PutObject uploads sizeBytes bytes from reader.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// PresignGetObject returns a URL that allows an anonymous GET until ttl elapses.
	PresignGetObject(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)
}
