package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
)

// service implements the Service interface
type service struct {
	repository   Repository
	blobStore    BlobStore
	contentStore ContentStore
	metrics      *Metrics
	maxPageLimit int
	now          func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the mapping repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the key-addressed store
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithContentStore sets the content-addressed store
func WithContentStore(store ContentStore) Option {
	return func(s *service) {
		s.contentStore = store
	}
}

// WithMetrics enables transfer metrics
func WithMetrics(m *Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithMaxPageLimit caps the page size of mapping listings
func WithMaxPageLimit(limit int) Option {
	return func(s *service) {
		s.maxPageLimit = limit
	}
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new bridge service with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		maxPageLimit: DefaultMaxPageLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.contentStore == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if s.maxPageLimit < 1 {
		s.maxPageLimit = DefaultMaxPageLimit
	}

	return s, nil
}

// Transfer operations

func (s *service) TransferIn(ctx context.Context, req TransferInRequest) (result *TransferInResult, err error) {
	started := time.Now()
	outcome, moved := OutcomeError, int64(0)
	defer func() {
		if KindOf(err) == KindConflict {
			outcome = OutcomeConflict
		}
		s.metrics.observe(DirectionIn, outcome, moved, started)
	}()

	key := req.BlobKey
	if strings.TrimSpace(key) == "" {
		return nil, &ValidationError{Field: "s3Key", Message: "S3 object key is required"}
	}

	existing, err := s.repository.GetMappingByBlobKey(ctx, key)
	switch {
	case err == nil:
		outcome = OutcomeExisting
		return s.transferInResult(existing, true), nil
	case !errors.Is(err, ErrMappingNotFound):
		return nil, mappingError("find_by_blob_key", key, "", err)
	}

	meta, err := s.blobStore.Head(ctx, key)
	if err != nil {
		return nil, storageError("blob", "head", key, err)
	}

	obj, err := s.blobStore.Get(ctx, key)
	if err != nil {
		return nil, storageError("blob", "get", key, err)
	}
	defer obj.Body.Close()

	name := displayName(key)
	contentType := firstNonEmpty(meta.ContentType, obj.ContentType, DefaultContentType)
	body := &countingReader{r: obj.Body}

	upload, err := s.contentStore.Upload(ctx, body, UploadOptions{
		Name:           name,
		ContentType:    contentType,
		Size:           meta.Size,
		OriginalSource: s.blobStore.URI(key),
	})
	if err != nil {
		return nil, storageError("content", "upload", key, err)
	}
	moved = body.n

	now := s.now()
	record := &MappingRecord{
		ID:                 uuid.New(),
		BlobKey:            key,
		ContentID:          upload.ContentID,
		Size:               firstPositive(upload.Size, meta.Size, body.n),
		MimeType:           firstNonEmpty(upload.MimeType, contentType),
		ContentStoreID:     upload.StoreID,
		DisplayName:        firstNonEmpty(upload.Name, name),
		Network:            upload.Network,
		FileCount:          upload.FileCount,
		ContentCreatedAt:   upload.CreatedAt,
		SourceLastModified: meta.LastModified,
		Metadata:           copyMetadata(meta.Metadata),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repository.CreateMapping(ctx, record); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateBlobKey):
			winner, getErr := s.repository.GetMappingByBlobKey(ctx, key)
			if getErr != nil {
				return nil, mappingError("find_by_blob_key", key, "", getErr)
			}
			slog.Info("Transfer-in resolved to concurrently created mapping",
				"blob_key", key, "content_id", winner.ContentID)
			outcome = OutcomeExisting
			return s.transferInResult(winner, true), nil
		case errors.Is(err, ErrDuplicateContentID):
			holder, getErr := s.repository.GetMappingByContentID(ctx, upload.ContentID)
			if getErr != nil {
				return nil, mappingError("find_by_content_id", key, upload.ContentID, getErr)
			}
			// a same-key race can surface on either unique index
			if holder.BlobKey == key {
				outcome = OutcomeExisting
				return s.transferInResult(holder, true), nil
			}
			return nil, &ConflictError{ContentID: upload.ContentID, RequestedBlobKey: key, Existing: holder}
		default:
			return nil, mappingError("create", key, upload.ContentID, err)
		}
	}

	slog.Info("Transfer-in completed",
		"blob_key", key, "content_id", record.ContentID, "bytes", moved, "mime_type", record.MimeType)
	outcome = OutcomeCreated
	return s.transferInResult(record, false), nil
}

func (s *service) transferInResult(record *MappingRecord, existing bool) *TransferInResult {
	return &TransferInResult{
		Record:     record,
		Existing:   existing,
		ContentURL: s.contentStore.GatewayURL(record.ContentID),
	}
}

func (s *service) TransferOut(ctx context.Context, req TransferOutRequest) (result *TransferOutResult, err error) {
	started := time.Now()
	outcome, moved := OutcomeError, int64(0)
	defer func() {
		if KindOf(err) == KindConflict {
			outcome = OutcomeConflict
		}
		s.metrics.observe(DirectionOut, outcome, moved, started)
	}()

	contentID, key := req.ContentID, req.BlobKey
	if strings.TrimSpace(contentID) == "" || strings.TrimSpace(key) == "" {
		return nil, &ValidationError{Field: "ipfsCid, s3Key", Message: "IPFS CID and S3 Key are required"}
	}
	if err := validateContentID(contentID); err != nil {
		return nil, err
	}

	existing, err := s.lookupTransferOut(ctx, contentID, key)
	if err != nil {
		return nil, err
	}

	payload, err := s.contentStore.Fetch(ctx, contentID)
	if err != nil {
		return nil, storageError("content", "fetch", contentID, err)
	}
	defer payload.Body.Close()

	contentType := firstNonEmpty(payload.ContentType, DefaultContentType)
	sourceURL := s.contentStore.GatewayURL(contentID)
	body := &countingReader{r: payload.Body}

	put, err := s.blobStore.Put(ctx, key, body, PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"ipfs-cid":    contentID,
			"ipfs-source": sourceURL,
		},
	})
	if err != nil {
		return nil, storageError("blob", "put", key, err)
	}
	moved = body.n

	record, created, err := s.saveTransferOut(ctx, existing, contentID, key, body.n, contentType)
	if err != nil {
		return nil, err
	}

	slog.Info("Transfer-out completed",
		"content_id", contentID, "blob_key", key, "bytes", moved, "created", created)
	outcome = OutcomeUpdated
	if created {
		outcome = OutcomeCreated
	}

	return &TransferOutResult{
		Record:    record,
		Created:   created,
		ETag:      put.ETag,
		VersionID: put.VersionID,
		Location:  put.Location,
		ObjectURI: s.blobStore.URI(key),
		SourceURL: sourceURL,
		Size:      body.n,
	}, nil
}

// lookupTransferOut returns the mapping a transfer-out should refresh, or nil
// when a new mapping is needed. Either address already bound to a different
// partner is a conflict.
func (s *service) lookupTransferOut(ctx context.Context, contentID, key string) (*MappingRecord, error) {
	byContent, err := s.repository.GetMappingByContentID(ctx, contentID)
	switch {
	case err == nil:
		if byContent.BlobKey != key {
			return nil, &ConflictError{ContentID: contentID, RequestedBlobKey: key, Existing: byContent}
		}
		return byContent, nil
	case !errors.Is(err, ErrMappingNotFound):
		return nil, mappingError("find_by_content_id", "", contentID, err)
	}

	byKey, err := s.repository.GetMappingByBlobKey(ctx, key)
	switch {
	case err == nil:
		// key holds different content; overwriting it would orphan that mapping
		return nil, &ConflictError{ContentID: contentID, RequestedBlobKey: key, Existing: byKey}
	case !errors.Is(err, ErrMappingNotFound):
		return nil, mappingError("find_by_blob_key", key, "", err)
	}

	return nil, nil
}

func (s *service) saveTransferOut(ctx context.Context, existing *MappingRecord, contentID, key string, size int64, mimeType string) (*MappingRecord, bool, error) {
	now := s.now()

	if existing == nil {
		record := &MappingRecord{
			ID:          uuid.New(),
			BlobKey:     key,
			ContentID:   contentID,
			Size:        size,
			MimeType:    mimeType,
			DisplayName: displayName(key),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		createErr := s.repository.CreateMapping(ctx, record)
		if createErr == nil {
			return record, true, nil
		}
		if !errors.Is(createErr, ErrDuplicateBlobKey) && !errors.Is(createErr, ErrDuplicateContentID) {
			return nil, false, mappingError("create", key, contentID, createErr)
		}

		// A concurrent request created a mapping first.
		winner, err := s.lookupTransferOut(ctx, contentID, key)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, mappingError("create", key, contentID, createErr)
		}
		existing = winner
	}

	updated := existing.Clone()
	updated.Size = size
	updated.MimeType = mimeType
	updated.UpdatedAt = now
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		updated.UpdatedAt = updated.CreatedAt
	}

	if err := s.repository.UpdateMapping(ctx, updated); err != nil {
		return nil, false, mappingError("update", key, contentID, err)
	}
	return updated, false, nil
}

// Mapping queries

func (s *service) ListMappings(ctx context.Context, req ListMappingsRequest) (*MappingPage, error) {
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > s.maxPageLimit {
		limit = s.maxPageLimit
	}
	if maxPage := maxOffset/limit + 1; page > maxPage {
		page = maxPage
	}

	records, total, err := s.repository.ListMappings(ctx, ListMappingsParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, mappingError("list", "", "", err)
	}

	return &MappingPage{
		Records: records,
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// maxOffset keeps (page-1)*limit well inside int range on every platform.
const maxOffset = 1 << 30

func (s *service) GetMapping(ctx context.Context, id string) (*MappingRecord, error) {
	mappingID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "mapping id must be a UUID"}
	}

	record, err := s.repository.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, mappingError("get", "", "", err)
	}
	return record, nil
}

// Store pass-through

func (s *service) ListObjects(ctx context.Context, req ListObjectsRequest) (*ObjectList, error) {
	maxKeys := req.MaxKeys
	if maxKeys < 1 {
		maxKeys = DefaultMaxKeys
	}
	if maxKeys > MaxListKeys {
		maxKeys = MaxListKeys
	}

	list, err := s.blobStore.List(ctx, ListObjectsParams{
		Prefix:            req.Prefix,
		MaxKeys:           int32(maxKeys),
		ContinuationToken: req.ContinuationToken,
	})
	if err != nil {
		return nil, storageError("blob", "list", req.Prefix, err)
	}
	return list, nil
}

func (s *service) GetObject(ctx context.Context, key string) (*Payload, error) {
	if strings.TrimSpace(key) == "" {
		return nil, &ValidationError{Field: "key", Message: "Object key is required"}
	}

	payload, err := s.blobStore.Get(ctx, key)
	if err != nil {
		return nil, storageError("blob", "get", key, err)
	}
	return payload, nil
}

func (s *service) GetContent(ctx context.Context, contentID string) (*Payload, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, &ValidationError{Field: "cid", Message: "CID is required"}
	}
	if err := validateContentID(contentID); err != nil {
		return nil, err
	}

	payload, err := s.contentStore.Fetch(ctx, contentID)
	if err != nil {
		return nil, storageError("content", "fetch", contentID, err)
	}
	return payload, nil
}

// Helpers

func validateContentID(contentID string) error {
	if _, err := cid.Decode(contentID); err != nil {
		return &ValidationError{Field: "ipfsCid", Message: fmt.Sprintf("%q is not a valid CID: %v", contentID, err)}
	}
	return nil
}

// displayName is the trailing path segment of a blob key.
func displayName(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	if name == "" {
		return key
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
