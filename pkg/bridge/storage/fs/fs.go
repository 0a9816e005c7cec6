package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// metaDir holds one JSON sidecar per object and is hidden from listings.
const metaDir = ".bridge-meta"

// Backend is a filesystem implementation of the bridge.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing objects
}

type sidecar struct {
	ContentType string            `json:"contentType,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New creates a new filesystem blob store
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, metaDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: baseDir}, nil
}

// objectPath maps a key to a file under baseDir. Keys that would escape the
// base directory or land in the sidecar directory are rejected.
func (b *Backend) objectPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	rel := strings.TrimPrefix(clean, "/")
	if rel == metaDir || strings.HasPrefix(rel, metaDir+"/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(rel)), nil
}

func (b *Backend) sidecarPath(key string) string {
	sum := md5.Sum([]byte(strings.TrimPrefix(path.Clean("/"+key), "/")))
	return filepath.Join(b.baseDir, metaDir, hex.EncodeToString(sum[:])+".json")
}

func (b *Backend) readSidecar(key string) sidecar {
	var sc sidecar
	data, err := os.ReadFile(b.sidecarPath(key))
	if err == nil {
		_ = json.Unmarshal(data, &sc)
	}
	return sc
}

// Head retrieves metadata for an object in the filesystem
func (b *Backend) Head(ctx context.Context, key string) (*bridge.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return nil, bridge.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	sc := b.readSidecar(key)
	modTime := info.ModTime().UTC()
	return &bridge.ObjectMeta{
		Key:          key,
		Size:         info.Size(),
		ContentType:  b.contentType(filePath, sc),
		LastModified: &modTime,
		ETag:         sc.ETag,
		Metadata:     sc.Metadata,
	}, nil
}

// contentType prefers the type recorded at write time, then the file
// extension, then content sniffing.
func (b *Backend) contentType(filePath string, sc sidecar) string {
	if sc.ContentType != "" {
		return sc.ContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(filePath)); ct != "" {
		return ct
	}

	file, err := os.Open(filePath)
	if err != nil {
		return bridge.DefaultContentType
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return bridge.DefaultContentType
	}
	return http.DetectContentType(buffer[:n])
}

// Get opens the object file
func (b *Backend) Get(ctx context.Context, key string) (*bridge.Payload, error) {
	meta, err := b.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	filePath, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, bridge.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &bridge.Payload{
		Body:         file,
		ContentType:  meta.ContentType,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		Metadata:     meta.Metadata,
	}, nil
}

// Put writes to a temporary file and renames it into place, so readers
// never observe a partial object.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, opts bridge.PutOptions) (*bridge.PutResult, error) {
	filePath, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	_, copyErr := io.Copy(io.MultiWriter(tmp, hash), body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("failed to write file: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to write file: %w", closeErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = bridge.DefaultContentType
	}
	sc := sidecar{
		ContentType: contentType,
		ETag:        hex.EncodeToString(hash.Sum(nil)),
		Metadata:    opts.Metadata,
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.WriteFile(b.sidecarPath(key), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	return &bridge.PutResult{
		ETag:     sc.ETag,
		Location: b.URI(key),
	}, nil
}

// List walks the base directory and returns objects under prefix in key
// order. The continuation token is the last key of the previous page.
func (b *Backend) List(ctx context.Context, params bridge.ListObjectsParams) (*bridge.ObjectList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	type entry struct {
		key  string
		info fs.FileInfo
	}
	var entries []entry

	err := filepath.WalkDir(b.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == metaDir && filepath.Dir(p) == b.baseDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, params.Prefix) || key <= params.ContinuationToken {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, entry{key: key, info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	maxKeys := int(params.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = bridge.DefaultMaxKeys
	}

	list := &bridge.ObjectList{}
	if len(entries) > maxKeys {
		entries = entries[:maxKeys]
		list.IsTruncated = true
		list.NextContinuationToken = entries[len(entries)-1].key
	}

	for _, e := range entries {
		modTime := e.info.ModTime().UTC()
		list.Objects = append(list.Objects, bridge.ObjectSummary{
			Key:          e.key,
			Size:         e.info.Size(),
			ETag:         b.readSidecar(e.key).ETag,
			LastModified: &modTime,
		})
	}

	return list, nil
}

// URI returns file:///base/dir/key
func (b *Backend) URI(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(b.baseDir, filepath.FromSlash(key)))
}
