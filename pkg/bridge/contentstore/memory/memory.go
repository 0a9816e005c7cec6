package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

const DefaultGatewayURL = "http://localhost:8080"

type entry struct {
	data        []byte
	contentType string
}

// Backend is an in-memory content-addressed store. Identifiers are CIDv1
// (raw codec, sha2-256) of the payload, so equal payloads share a CID.
type Backend struct {
	mu         sync.RWMutex
	gatewayURL string
	entries    map[string]*entry
}

// New creates a new in-memory content store. gatewayURL is only used to build
// browsable URLs.
func New(gatewayURL string) *Backend {
	if gatewayURL == "" {
		gatewayURL = DefaultGatewayURL
	}
	return &Backend{
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		entries:    make(map[string]*entry),
	}
}

// Sum returns the CID the store assigns to data.
func Sum(data []byte) (cid.Cid, error) {
	pref := cid.Prefix{
		Version:  1,
		Codec:    cid.Raw,
		MhType:   mh.SHA2_256,
		MhLength: -1, // default length
	}
	return pref.Sum(data)
}

// Upload stores the payload under its CID
func (b *Backend) Upload(ctx context.Context, body io.Reader, opts bridge.UploadOptions) (*bridge.UploadResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := Sum(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cid: %w", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = bridge.DefaultContentType
	}

	b.mu.Lock()
	if _, exists := b.entries[c.String()]; !exists {
		b.entries[c.String()] = &entry{data: data, contentType: contentType}
	}
	b.mu.Unlock()

	now := time.Now().UTC()
	return &bridge.UploadResult{
		ContentID: c.String(),
		StoreID:   uuid.NewString(),
		Name:      opts.Name,
		Size:      int64(len(data)),
		MimeType:  contentType,
		FileCount: 1,
		Network:   "memory",
		CreatedAt: &now,
	}, nil
}

// Fetch returns the payload stored under contentID
func (b *Backend) Fetch(ctx context.Context, contentID string) (*bridge.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	e, exists := b.entries[contentID]
	if !exists {
		return nil, bridge.ErrContentNotFound
	}

	return &bridge.Payload{
		Body:        io.NopCloser(bytes.NewReader(e.data)),
		ContentType: e.contentType,
		Size:        int64(len(e.data)),
	}, nil
}

// Put seeds the store with data and returns its CID. Useful for tests that
// start from content that was never uploaded through the bridge.
func (b *Backend) Put(data []byte, contentType string) (string, error) {
	result, err := b.Upload(context.Background(), bytes.NewReader(data), bridge.UploadOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return result.ContentID, nil
}

// GatewayURL returns gateway/ipfs/cid
func (b *Backend) GatewayURL(contentID string) string {
	return b.gatewayURL + "/ipfs/" + contentID
}
