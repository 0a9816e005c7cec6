package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

func newRecord(key, cid string, createdAt time.Time) *bridge.MappingRecord {
	return &bridge.MappingRecord{
		ID:        uuid.New(),
		BlobKey:   key,
		ContentID: cid,
		Size:      10,
		Metadata:  map[string]string{"k": "v"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := New()
	ctx := context.Background()
	record := newRecord("a.txt", "cid-a", time.Now())

	require.NoError(t, repo.CreateMapping(ctx, record))

	got, err := repo.GetMapping(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// Returned records are copies
	got.Metadata["k"] = "changed"
	again, err := repo.GetMappingByBlobKey(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"])

	byCID, err := repo.GetMappingByContentID(ctx, "cid-a")
	require.NoError(t, err)
	assert.Equal(t, record.ID, byCID.ID)

	_, err = repo.GetMapping(ctx, uuid.New())
	assert.ErrorIs(t, err, bridge.ErrMappingNotFound)
	_, err = repo.GetMappingByContentID(ctx, "missing")
	assert.ErrorIs(t, err, bridge.ErrMappingNotFound)
}

func TestRepository_CreateRejectsDuplicates(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.CreateMapping(ctx, newRecord("a", "cid-a", now)))

	assert.ErrorIs(t, repo.CreateMapping(ctx, newRecord("a", "cid-b", now)), bridge.ErrDuplicateBlobKey)
	assert.ErrorIs(t, repo.CreateMapping(ctx, newRecord("b", "cid-a", now)), bridge.ErrDuplicateContentID)

	_, total, err := repo.ListMappings(ctx, bridge.ListMappingsParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRepository_Update(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now()
	record := newRecord("a", "cid-a", now)
	other := newRecord("b", "cid-b", now)
	require.NoError(t, repo.CreateMapping(ctx, record))
	require.NoError(t, repo.CreateMapping(ctx, other))

	updated := record.Clone()
	updated.Size = 99
	updated.UpdatedAt = now.Add(time.Hour)
	updated.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repo.UpdateMapping(ctx, updated))

	got, err := repo.GetMapping(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Size)
	assert.True(t, got.CreatedAt.Equal(now), "created_at is immutable")

	clash := record.Clone()
	clash.BlobKey = "b"
	assert.ErrorIs(t, repo.UpdateMapping(ctx, clash), bridge.ErrDuplicateBlobKey)

	assert.ErrorIs(t, repo.UpdateMapping(ctx, newRecord("z", "cid-z", now)), bridge.ErrMappingNotFound)
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo := New()
	ctx := context.Background()
	base := time.Now()
	for i, key := range []string{"first", "second", "third"} {
		require.NoError(t, repo.CreateMapping(ctx, newRecord(key, "cid-"+key, base.Add(time.Duration(i)*time.Second))))
	}

	page, total, err := repo.ListMappings(ctx, bridge.ListMappingsParams{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "third", page[0].BlobKey)
	assert.Equal(t, "second", page[1].BlobKey)

	page, _, err = repo.ListMappings(ctx, bridge.ListMappingsParams{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "first", page[0].BlobKey)

	page, _, err = repo.ListMappings(ctx, bridge.ListMappingsParams{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestRepository_CancelledContext(t *testing.T) {
	repo := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.CreateMapping(ctx, newRecord("a", "cid-a", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)

	_, total, err := repo.ListMappings(context.Background(), bridge.ListMappingsParams{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}
