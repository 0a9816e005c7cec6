package bridge

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore defines the operations used against the key-addressed store
type BlobStore interface {
	// Head returns object metadata without the payload
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Get opens the object payload
	Get(ctx context.Context, key string) (*Payload, error)

	// Put writes the object and returns once the store has confirmed it
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*PutResult, error)

	// List returns one page of objects under a prefix
	List(ctx context.Context, params ListObjectsParams) (*ObjectList, error)

	// URI returns a provenance reference for key, e.g. s3://bucket/key
	URI(key string) string
}

// ContentStore defines the operations used against the content-addressed store
type ContentStore interface {
	// Upload stores the payload and returns its content identifier
	Upload(ctx context.Context, body io.Reader, opts UploadOptions) (*UploadResult, error)

	// Fetch opens the payload for a content identifier
	Fetch(ctx context.Context, contentID string) (*Payload, error)

	// GatewayURL returns a browsable URL for a content identifier
	GatewayURL(contentID string) string
}

// Repository persists mapping records.
//
// Create must reject a second record for the same blob key with
// ErrDuplicateBlobKey and for the same content identifier with
// ErrDuplicateContentID. Lookups return ErrMappingNotFound when absent.
type Repository interface {
	CreateMapping(ctx context.Context, record *MappingRecord) error
	UpdateMapping(ctx context.Context, record *MappingRecord) error
	GetMapping(ctx context.Context, id uuid.UUID) (*MappingRecord, error)
	GetMappingByBlobKey(ctx context.Context, blobKey string) (*MappingRecord, error)
	GetMappingByContentID(ctx context.Context, contentID string) (*MappingRecord, error)
	// ListMappings returns records newest first and the total record count
	ListMappings(ctx context.Context, params ListMappingsParams) ([]*MappingRecord, int64, error)
}

// ListMappingsParams is a normalized offset/limit window over mapping records.
type ListMappingsParams struct {
	Limit  int
	Offset int
}
