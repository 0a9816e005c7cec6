package bridge

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Transfer directions used in results, logs and metrics.
const (
	DirectionIn  = "s3-to-ipfs"
	DirectionOut = "ipfs-to-s3"
)

// DefaultContentType is used when neither store reports a content type.
const DefaultContentType = "application/octet-stream"

// MappingRecord is the durable association between a blob store key and a
// content store identifier.
type MappingRecord struct {
	ID        uuid.UUID `json:"id"`
	BlobKey   string    `json:"s3Key"`
	ContentID string    `json:"ipfsCid"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType,omitempty"`

	// Fields reported by the content store on upload.
	ContentStoreID   string     `json:"contentStoreId,omitempty"`
	DisplayName      string     `json:"name,omitempty"`
	Network          string     `json:"network,omitempty"`
	FileCount        int        `json:"numberOfFiles,omitempty"`
	ContentCreatedAt *time.Time `json:"contentCreatedAt,omitempty"`

	// Last-Modified of the source object at transfer-in time.
	SourceLastModified *time.Time `json:"lastModified,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the record.
func (m *MappingRecord) Clone() *MappingRecord {
	if m == nil {
		return nil
	}
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	if m.ContentCreatedAt != nil {
		t := *m.ContentCreatedAt
		c.ContentCreatedAt = &t
	}
	if m.SourceLastModified != nil {
		t := *m.SourceLastModified
		c.SourceLastModified = &t
	}
	return &c
}

// MappingPage is one page of mapping records ordered newest first.
type MappingPage struct {
	Records []*MappingRecord
	Total   int64
	Page    int
	Limit   int
	Pages   int
}

// ObjectMeta contains metadata about an object in the blob store
type ObjectMeta struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified *time.Time
	ETag         string
	Metadata     map[string]string
}

// Payload is a readable object from either store. Callers must close Body.
// Size is -1 when the store does not report a length.
type Payload struct {
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	LastModified *time.Time
	Metadata     map[string]string
}

// PutOptions carries the attributes written with a blob store object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// PutResult describes an object confirmed by the blob store.
type PutResult struct {
	ETag      string
	VersionID string
	Location  string
}

// ObjectSummary is one entry of a blob store listing.
type ObjectSummary struct {
	Key          string     `json:"Key"`
	Size         int64      `json:"Size"`
	ETag         string     `json:"ETag,omitempty"`
	LastModified *time.Time `json:"LastModified,omitempty"`
	StorageClass string     `json:"StorageClass,omitempty"`
}

// ObjectList is one page of a blob store listing.
type ObjectList struct {
	Objects               []ObjectSummary
	NextContinuationToken string
	IsTruncated           bool
}

// ListObjectsParams controls a blob store listing.
type ListObjectsParams struct {
	Prefix            string
	MaxKeys           int32
	ContinuationToken string
}

// UploadOptions carries the attributes sent to the content store with a payload.
type UploadOptions struct {
	Name           string
	ContentType    string
	Size           int64
	OriginalSource string
}

// UploadResult is the content store's response to an upload.
type UploadResult struct {
	ContentID string
	StoreID   string
	Name      string
	Size      int64
	MimeType  string
	FileCount int
	Network   string
	CreatedAt *time.Time
}

// TransferInResult is returned by Service.TransferIn.
type TransferInResult struct {
	Record *MappingRecord
	// Existing is true when no transfer happened because the key was
	// already mapped.
	Existing   bool
	ContentURL string
}

// TransferOutResult is returned by Service.TransferOut.
type TransferOutResult struct {
	Record *MappingRecord
	// Created is false when an existing mapping was refreshed.
	Created   bool
	ETag      string
	VersionID string
	Location  string
	// ObjectURI is the store reference for the written key, e.g. s3://bucket/key
	ObjectURI string
	SourceURL string
	Size      int64
}
