package blob

import (
	"context"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// Store defines the interface for object storage operations. The Mongo
// backend uses it to offload large video payloads out of the database and to
// hand clients presigned download URLs instead of inline data.
type Store interface {
	// Put uploads an object.
	Put(ctx context.Context, objectKey string, data []byte, contentType string) error

	// Get downloads an object's bytes.
	Get(ctx context.Context, objectKey string) ([]byte, error)

	// Delete removes an object from the storage provider.
	Delete(ctx context.Context, objectKey string) error

	// PresignUpload creates a temporary URL that allows PUT requests for
	// uploading an object directly to the storage provider.
	PresignUpload(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// PresignDownload creates a temporary URL that allows GET requests
	// for downloading/viewing an object directly from the storage provider.
	PresignDownload(ctx context.Context, objectKey string, expires time.Duration) (string, error)
}
