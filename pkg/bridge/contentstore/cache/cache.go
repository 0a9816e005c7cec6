package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

const (
	// DefaultMaxObjectBytes is the largest payload kept in the cache.
	DefaultMaxObjectBytes = 4 << 20
	// DefaultMaxBytes bounds the total size of cached payloads.
	DefaultMaxBytes = 256 << 20
	// DefaultMaxEntries bounds the number of cached payloads.
	DefaultMaxEntries = 10000
)

// Config bounds the cache. Zero values use the defaults.
type Config struct {
	MaxObjectBytes int64
	MaxBytes       int64
	MaxEntries     int
}

// store is a read-through cache in front of a content store. Content
// identifiers name immutable bytes, so cached entries never go stale; they
// leave the cache only when the least recently used entries are evicted to
// stay within the byte and entry budgets.
type store struct {
	source         bridge.ContentStore
	cache          datastore.Datastore
	maxObjectBytes int64
	maxBytes       int64

	mu        sync.Mutex
	index     *simplelru.LRU[string, int64] // content id -> cached bytes
	usedBytes int64
}

type cachedPayload struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Wrap returns source with fetches cached in ds. Payloads larger than
// MaxObjectBytes are streamed through uncached.
func Wrap(source bridge.ContentStore, ds datastore.Datastore, cfg Config) (bridge.ContentStore, error) {
	if ds == nil {
		return source, nil
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxObjectBytes <= 0 {
		cfg.MaxObjectBytes = DefaultMaxObjectBytes
	}
	if cfg.MaxObjectBytes > cfg.MaxBytes {
		cfg.MaxObjectBytes = cfg.MaxBytes
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	s := &store{
		source:         source,
		cache:          ds,
		maxObjectBytes: cfg.MaxObjectBytes,
		maxBytes:       cfg.MaxBytes,
	}
	index, err := simplelru.NewLRU[string, int64](cfg.MaxEntries, s.evicted)
	if err != nil {
		return nil, err
	}
	s.index = index
	return s, nil
}

// evicted runs with s.mu held, from inside the LRU.
func (s *store) evicted(contentID string, size int64) {
	s.usedBytes -= size
	if err := s.cache.Delete(context.Background(), cacheKey(contentID)); err != nil {
		slog.Warn("Content cache delete failed", "content_id", contentID, "err", err)
	}
}

// NewMemoryDatastore returns a thread-safe in-memory datastore.
func NewMemoryDatastore() datastore.Datastore {
	return dssync.MutexWrap(datastore.NewMapDatastore())
}

func (s *store) Upload(ctx context.Context, body io.Reader, opts bridge.UploadOptions) (*bridge.UploadResult, error) {
	return s.source.Upload(ctx, body, opts)
}

func (s *store) GatewayURL(contentID string) string {
	return s.source.GatewayURL(contentID)
}

func (s *store) Fetch(ctx context.Context, contentID string) (*bridge.Payload, error) {
	// read cache
	if s.touch(contentID) {
		cached, err := s.cacheRead(ctx, contentID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, datastore.ErrNotFound) {
			slog.Warn("Content cache read failed", "content_id", contentID, "err", err)
		}
		s.forget(contentID)
	}

	// fetch from source
	payload, err := s.source.Fetch(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if payload.Size > s.maxObjectBytes {
		return payload, nil
	}

	data, err := io.ReadAll(io.LimitReader(payload.Body, s.maxObjectBytes+1))
	if err != nil {
		payload.Body.Close()
		return nil, err
	}

	// too large to cache; hand back what was read followed by the rest
	if int64(len(data)) > s.maxObjectBytes {
		payload.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(data), payload.Body), closer: payload.Body}
		return payload, nil
	}
	payload.Body.Close()

	// write cache
	if err := s.cacheWrite(ctx, contentID, cachedPayload{ContentType: payload.ContentType, Data: data}); err != nil {
		slog.Warn("Content cache write failed", "content_id", contentID, "err", err)
	} else {
		s.admit(contentID, int64(len(data)))
	}

	return &bridge.Payload{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: payload.ContentType,
		Size:        int64(len(data)),
	}, nil
}

// touch reports whether contentID is cached and marks it recently used.
func (s *store) touch(contentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index.Get(contentID)
	return ok
}

func (s *store) forget(contentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Remove(contentID)
}

// admit records a cached payload and evicts the least recently used entries
// until the byte budget holds again.
func (s *store) admit(contentID string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.Contains(contentID) {
		return
	}
	s.index.Add(contentID, size)
	s.usedBytes += size
	for s.usedBytes > s.maxBytes {
		if _, _, ok := s.index.RemoveOldest(); !ok {
			break
		}
	}
}

// Stats returns the number of cached payloads and their total size.
func (s *store) Stats() (entries int, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len(), s.usedBytes
}

func (s *store) cacheRead(ctx context.Context, contentID string) (*bridge.Payload, error) {
	raw, err := s.cache.Get(ctx, cacheKey(contentID))
	if err != nil {
		return nil, err
	}

	var cached cachedPayload
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}

	return &bridge.Payload{
		Body:        io.NopCloser(bytes.NewReader(cached.Data)),
		ContentType: cached.ContentType,
		Size:        int64(len(cached.Data)),
	}, nil
}

func (s *store) cacheWrite(ctx context.Context, contentID string, cached cachedPayload) error {
	raw, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return s.cache.Put(ctx, cacheKey(contentID), raw)
}

func cacheKey(contentID string) datastore.Key {
	return datastore.NewKey("/content/" + contentID)
}

type prefixedBody struct {
	io.Reader
	closer io.Closer
}

func (b *prefixedBody) Close() error {
	return b.closer.Close()
}
