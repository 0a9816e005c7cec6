package bridge

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrInvalidRequest indicates missing or malformed request fields
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMappingNotFound indicates a mapping record was not found
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrObjectNotFound indicates the blob store has no such key
	ErrObjectNotFound = errors.New("object not found")

	// ErrContentNotFound indicates the content store has no such identifier
	ErrContentNotFound = errors.New("content not found")

	// ErrDuplicateBlobKey is returned by repositories when the blob key is already mapped
	ErrDuplicateBlobKey = errors.New("blob key already mapped")

	// ErrDuplicateContentID is returned by repositories when the content identifier is already mapped
	ErrDuplicateContentID = errors.New("content identifier already mapped")

	// ErrConflict indicates a content identifier bound to a different blob key
	ErrConflict = errors.New("mapping conflict")

	// ErrUpstream indicates a store or network failure
	ErrUpstream = errors.New("upstream store error")

	// ErrPersistence indicates a mapping store failure
	ErrPersistence = errors.New("mapping persistence error")
)

// Kind classifies an error for callers at the transport boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUpstream
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// KindOf reports the Kind of err. Not-found and conflict take precedence over
// the upstream/persistence wrappers they may be carried in.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidRequest):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrMappingNotFound),
		errors.Is(err, ErrObjectNotFound),
		errors.Is(err, ErrContentNotFound):
		return KindNotFound
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindUnknown
	}
}

// ValidationError reports a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ConflictError reports a content identifier that is already bound to another
// blob key. Existing is the mapping that holds the identifier, when known.
type ConflictError struct {
	ContentID        string
	RequestedBlobKey string
	Existing         *MappingRecord
}

func (e *ConflictError) Error() string {
	if e.Existing != nil && e.Existing.BlobKey == e.RequestedBlobKey {
		return fmt.Sprintf("key %q is already mapped to content %s, cannot map it to %s",
			e.RequestedBlobKey, e.Existing.ContentID, e.ContentID)
	}
	if e.Existing != nil {
		return fmt.Sprintf("content %s is already mapped to %q, cannot map it to %q",
			e.ContentID, e.Existing.BlobKey, e.RequestedBlobKey)
	}
	return fmt.Sprintf("content %s is already mapped to a different key than %q", e.ContentID, e.RequestedBlobKey)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StorageError represents an error related to blob or content store operations
type StorageError struct {
	Store string
	Key   string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store operation %s failed for %s: %v", e.Store, e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// MappingError represents an error related to mapping persistence
type MappingError struct {
	Op        string
	BlobKey   string
	ContentID string
	Err       error
}

func (e *MappingError) Error() string {
	switch {
	case e.BlobKey != "" && e.ContentID != "":
		return fmt.Sprintf("mapping operation %s failed for %s -> %s: %v", e.Op, e.BlobKey, e.ContentID, e.Err)
	case e.BlobKey != "":
		return fmt.Sprintf("mapping operation %s failed for key %s: %v", e.Op, e.BlobKey, e.Err)
	case e.ContentID != "":
		return fmt.Sprintf("mapping operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
	default:
		return fmt.Sprintf("mapping operation %s failed: %v", e.Op, e.Err)
	}
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// storageError wraps a store failure. Not-found errors keep their identity;
// anything else is marked as an upstream failure.
func storageError(store, op, key string, err error) error {
	if !errors.Is(err, ErrObjectNotFound) && !errors.Is(err, ErrContentNotFound) && !errors.Is(err, ErrUpstream) {
		err = fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return &StorageError{Store: store, Key: key, Op: op, Err: err}
}

// mappingError wraps a repository failure. ErrMappingNotFound keeps its
// identity; anything else is marked as a persistence failure.
func mappingError(op, blobKey, contentID string, err error) error {
	if !errors.Is(err, ErrMappingNotFound) && !errors.Is(err, ErrPersistence) {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &MappingError{Op: op, BlobKey: blobKey, ContentID: contentID, Err: err}
}
