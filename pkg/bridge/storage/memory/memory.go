package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

type object struct {
	data         []byte
	contentType  string
	metadata     map[string]string
	etag         string
	lastModified time.Time
}

// Backend is an in-memory implementation of the bridge.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]*object
}

// New creates a new in-memory blob store. bucket only affects URIs.
func New(bucket string) *Backend {
	if bucket == "" {
		bucket = "memory"
	}
	return &Backend{
		bucket:  bucket,
		objects: make(map[string]*object),
	}
}

// Head retrieves metadata for an object in memory
func (b *Backend) Head(ctx context.Context, key string) (*bridge.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, bridge.ErrObjectNotFound
	}

	lastModified := obj.lastModified
	return &bridge.ObjectMeta{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: &lastModified,
		ETag:         obj.etag,
		Metadata:     cloneMap(obj.metadata),
	}, nil
}

// Get opens the object payload
func (b *Backend) Get(ctx context.Context, key string) (*bridge.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, bridge.ErrObjectNotFound
	}

	lastModified := obj.lastModified
	return &bridge.Payload{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:  obj.contentType,
		Size:         int64(len(obj.data)),
		LastModified: &lastModified,
		Metadata:     cloneMap(obj.metadata),
	}, nil
}

// Put stores the object. Nothing is written if reading body fails.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, opts bridge.PutOptions) (*bridge.PutResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = bridge.DefaultContentType
	}
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = &object{
		data:         data,
		contentType:  contentType,
		metadata:     cloneMap(opts.Metadata),
		etag:         etag,
		lastModified: time.Now().UTC(),
	}

	return &bridge.PutResult{
		ETag:     etag,
		Location: b.URI(key),
	}, nil
}

// List returns objects under prefix in key order. The continuation token is
// the last key of the previous page.
func (b *Backend) List(ctx context.Context, params bridge.ListObjectsParams) (*bridge.ObjectList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		if strings.HasPrefix(key, params.Prefix) && key > params.ContinuationToken {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	maxKeys := int(params.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = bridge.DefaultMaxKeys
	}

	list := &bridge.ObjectList{}
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
		list.IsTruncated = true
		list.NextContinuationToken = keys[len(keys)-1]
	}

	for _, key := range keys {
		obj := b.objects[key]
		lastModified := obj.lastModified
		list.Objects = append(list.Objects, bridge.ObjectSummary{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: &lastModified,
			StorageClass: "STANDARD",
		})
	}

	return list, nil
}

// URI returns memory://bucket/key
func (b *Backend) URI(key string) string {
	return "memory://" + b.bucket + "/" + key
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
