package bridge

// Pagination defaults for mapping queries.
const (
	DefaultPage         = 1
	DefaultPageLimit    = 10
	DefaultMaxPageLimit = 100
)

// Listing bounds for blob store pass-through.
const (
	DefaultMaxKeys = 1000
	MaxListKeys    = 1000
)

// TransferInRequest asks for the object at BlobKey to be copied into the content store
type TransferInRequest struct {
	BlobKey string
}

// TransferOutRequest asks for ContentID to be copied into the blob store at BlobKey
type TransferOutRequest struct {
	ContentID string
	BlobKey   string
}

// ListMappingsRequest selects a page of mappings. Zero values use defaults.
type ListMappingsRequest struct {
	Page  int
	Limit int
}

// ListObjectsRequest selects a page of blob store objects. Zero MaxKeys uses DefaultMaxKeys.
type ListObjectsRequest struct {
	Prefix            string
	MaxKeys           int
	ContinuationToken string
}
