package bridge

import "context"

// Service is the main interface for the bridge.
type Service interface {
	// TransferIn copies a blob store object into the content store and maps
	// the two addresses. A key that is already mapped is returned as is.
	TransferIn(ctx context.Context, req TransferInRequest) (*TransferInResult, error)

	// TransferOut copies content into the blob store and maps the two
	// addresses. It fails with ErrConflict when the content is bound to a
	// different key.
	TransferOut(ctx context.Context, req TransferOutRequest) (*TransferOutResult, error)

	// Mapping queries
	ListMappings(ctx context.Context, req ListMappingsRequest) (*MappingPage, error)
	GetMapping(ctx context.Context, id string) (*MappingRecord, error)

	// Store pass-through
	ListObjects(ctx context.Context, req ListObjectsRequest) (*ObjectList, error)
	GetObject(ctx context.Context, key string) (*Payload, error)
	GetContent(ctx context.Context, contentID string) (*Payload, error)
}
