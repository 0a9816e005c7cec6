package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// Repository implements bridge.Repository using in-memory storage. The blob
// key and content id indexes play the role of unique constraints.
type Repository struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*bridge.MappingRecord
	byBlobKey   map[string]uuid.UUID
	byContentID map[string]uuid.UUID
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		records:     make(map[uuid.UUID]*bridge.MappingRecord),
		byBlobKey:   make(map[string]uuid.UUID),
		byContentID: make(map[string]uuid.UUID),
	}
}

func (r *Repository) CreateMapping(ctx context.Context, record *bridge.MappingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byBlobKey[record.BlobKey]; exists {
		return bridge.ErrDuplicateBlobKey
	}
	if _, exists := r.byContentID[record.ContentID]; exists {
		return bridge.ErrDuplicateContentID
	}

	r.records[record.ID] = record.Clone()
	r.byBlobKey[record.BlobKey] = record.ID
	r.byContentID[record.ContentID] = record.ID
	return nil
}

func (r *Repository) UpdateMapping(ctx context.Context, record *bridge.MappingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.records[record.ID]
	if !exists {
		return bridge.ErrMappingNotFound
	}
	if id, taken := r.byBlobKey[record.BlobKey]; taken && id != record.ID {
		return bridge.ErrDuplicateBlobKey
	}
	if id, taken := r.byContentID[record.ContentID]; taken && id != record.ID {
		return bridge.ErrDuplicateContentID
	}

	delete(r.byBlobKey, current.BlobKey)
	delete(r.byContentID, current.ContentID)

	updated := record.Clone()
	updated.CreatedAt = current.CreatedAt
	r.records[record.ID] = updated
	r.byBlobKey[record.BlobKey] = record.ID
	r.byContentID[record.ContentID] = record.ID
	return nil
}

func (r *Repository) GetMapping(ctx context.Context, id uuid.UUID) (*bridge.MappingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, bridge.ErrMappingNotFound
	}
	return record.Clone(), nil
}

func (r *Repository) GetMappingByBlobKey(ctx context.Context, blobKey string) (*bridge.MappingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byBlobKey[blobKey]
	if !exists {
		return nil, bridge.ErrMappingNotFound
	}
	return r.records[id].Clone(), nil
}

func (r *Repository) GetMappingByContentID(ctx context.Context, contentID string) (*bridge.MappingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byContentID[contentID]
	if !exists {
		return nil, bridge.ErrMappingNotFound
	}
	return r.records[id].Clone(), nil
}

func (r *Repository) ListMappings(ctx context.Context, params bridge.ListMappingsParams) ([]*bridge.MappingRecord, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*bridge.MappingRecord, 0, len(r.records))
	for _, record := range r.records {
		all = append(all, record)
	}

	// Sort by created_at descending, id descending as tiebreak
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return bytes.Compare(all[i].ID[:], all[j].ID[:]) > 0
	})

	total := int64(len(all))
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*bridge.MappingRecord{}, total, nil
	}

	end := len(all)
	if params.Limit > 0 && offset+params.Limit < end {
		end = offset + params.Limit
	}

	page := make([]*bridge.MappingRecord, 0, end-offset)
	for _, record := range all[offset:end] {
		page = append(page, record.Clone())
	}
	return page, total, nil
}
