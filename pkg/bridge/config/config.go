package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/contentstore/cache"
	contentmemory "github.com/tendant/s3-ipfs-bridge/pkg/bridge/contentstore/memory"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/contentstore/pinata"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/repo/memory"
	repopg "github.com/tendant/s3-ipfs-bridge/pkg/bridge/repo/postgres"
	storagefs "github.com/tendant/s3-ipfs-bridge/pkg/bridge/storage/fs"
	storagememory "github.com/tendant/s3-ipfs-bridge/pkg/bridge/storage/memory"
	s3storage "github.com/tendant/s3-ipfs-bridge/pkg/bridge/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:           "3000",
		Environment:    "development",
		RequestTimeout: 60 * time.Second,
		DatabaseURL:    "memory",
		S3: S3Config{
			Region: "us-east-1",
		},
		FS: FSConfig{
			BaseDir: "./data/blobs",
		},
		Pinata: PinataConfig{
			UploadURL:  pinata.DefaultUploadURL,
			GatewayURL: pinata.DefaultGatewayURL,
			Network:    pinata.DefaultNetwork,
		},
		Cache: CacheConfig{
			MaxObjectBytes: cache.DefaultMaxObjectBytes,
			MaxBytes:       cache.DefaultMaxBytes,
			MaxEntries:     cache.DefaultMaxEntries,
		},
		MaxPageLimit: bridge.DefaultMaxPageLimit,
	}
}

// ServerConfig represents server configuration for the bridge
type ServerConfig struct {
	Port           string        `env:"PORT" env-description:"HTTP listen port"`
	Environment    string        `env:"ENVIRONMENT" env-description:"development, production or testing"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-description:"Per-request timeout"`

	// Database configuration. DatabaseURL is "memory" or a postgres URL.
	DatabaseURL   string `env:"DATABASE_URL" env-description:"memory or postgres://..."`
	DatabaseType  string
	DBSchema      string `env:"DB_SCHEMA" env-description:"Postgres schema (search_path)"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" env-description:"Create mapping tables at startup"`

	// Store selection. Empty values are resolved from the credentials present.
	BlobStore    string `env:"BLOB_STORE" env-description:"s3, fs or memory"`
	ContentStore string `env:"CONTENT_STORE" env-description:"pinata or memory"`

	S3     S3Config
	FS     FSConfig
	Pinata PinataConfig
	Cache  CacheConfig

	MaxPageLimit int `env:"MAX_PAGE_LIMIT" env-description:"Largest mapping page size"`
}

// S3Config is the blob store section
type S3Config struct {
	Bucket                 string `env:"S3_BUCKET_NAME"`
	Region                 string `env:"AWS_REGION"`
	AccessKeyID            string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey        string `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint               string `env:"S3_ENDPOINT"`
	UsePathStyle           bool   `env:"S3_USE_PATH_STYLE"`
	CreateBucketIfNotExist bool   `env:"S3_CREATE_BUCKET"`
}

// FSConfig is the filesystem blob store section
type FSConfig struct {
	BaseDir string `env:"FS_BASE_DIR"`
}

// PinataConfig is the content store section
type PinataConfig struct {
	JWT          string `env:"PINATA_JWT"`
	UploadURL    string `env:"PINATA_UPLOAD_URL,PINATA_API_URL"`
	GatewayURL   string `env:"PINATA_GATEWAY_URL"`
	GatewayToken string `env:"PINATA_GATEWAY_TOKEN"`
	Network      string `env:"PINATA_NETWORK"`
}

// CacheConfig controls the in-memory content cache
type CacheConfig struct {
	Enabled        bool  `env:"CONTENT_CACHE_ENABLED"`
	MaxObjectBytes int64 `env:"CONTENT_CACHE_MAX_OBJECT_BYTES"`
	MaxBytes       int64 `env:"CONTENT_CACHE_MAX_BYTES"`
	MaxEntries     int   `env:"CONTENT_CACHE_MAX_ENTRIES"`
}

// WithEnv reads the variables named in the ServerConfig tags. Unset
// variables keep the values already in the config.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// resolve fills the derived fields
func (c *ServerConfig) resolve() {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		c.DatabaseType = "postgres"
	default:
		c.DatabaseType = "unsupported"
	}

	if c.BlobStore == "" {
		c.BlobStore = "memory"
		if c.S3.Bucket != "" {
			c.BlobStore = "s3"
		}
	}
	if c.ContentStore == "" {
		c.ContentStore = "memory"
		if c.Pinata.JWT != "" {
			c.ContentStore = "pinata"
		}
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", c.DatabaseURL)
	}

	switch c.BlobStore {
	case "memory":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET_NAME is required when using s3")
		}
	case "fs":
		if c.FS.BaseDir == "" {
			return errors.New("FS_BASE_DIR is required when using fs")
		}
	default:
		return fmt.Errorf("unsupported blob store: %s", c.BlobStore)
	}

	switch c.ContentStore {
	case "memory":
	case "pinata":
		if c.Pinata.JWT == "" {
			return errors.New("PINATA_JWT is required when using pinata")
		}
	default:
		return fmt.Errorf("unsupported content store: %s", c.ContentStore)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}

	return nil
}

// Runtime holds the service and the resources it owns
type Runtime struct {
	Service    bridge.Service
	Repository bridge.Repository
	BlobStore  bridge.BlobStore
	Metrics    *bridge.Metrics

	pool *pgxpool.Pool
}

// Close releases the database pool, if any
func (r *Runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// BuildService creates the bridge service from the server configuration.
// Metrics are registered with reg when it is not nil.
func (c *ServerConfig) BuildService(ctx context.Context, reg prometheus.Registerer) (*Runtime, error) {
	rt := &Runtime{}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo

	blobStore, err := c.buildBlobStore(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}
	rt.BlobStore = blobStore

	contentStore, err := c.buildContentStore()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build content store: %w", err)
	}

	options := []bridge.Option{
		bridge.WithRepository(repo),
		bridge.WithBlobStore(blobStore),
		bridge.WithContentStore(contentStore),
		bridge.WithMaxPageLimit(c.MaxPageLimit),
	}

	if reg != nil {
		metrics, err := bridge.NewMetrics(reg)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		rt.Metrics = metrics
		options = append(options, bridge.WithMetrics(metrics))
	}

	svc, err := bridge.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	slog.Info("Bridge service configured",
		"database", c.DatabaseType, "blob_store", c.BlobStore,
		"content_store", c.ContentStore, "content_cache", c.Cache.Enabled)
	return rt, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (bridge.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		rt.pool = pool

		repo := repopg.NewWithPool(pool)
		if c.DBAutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool and sets search_path to schema on every connection.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildBlobStore creates a BlobStore based on the configuration
func (c *ServerConfig) buildBlobStore(ctx context.Context) (bridge.BlobStore, error) {
	switch c.BlobStore {
	case "memory":
		bucket := c.S3.Bucket
		if bucket == "" {
			bucket = "local"
		}
		return storagememory.New(bucket), nil
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
	case "fs":
		return storagefs.New(storagefs.Config{BaseDir: c.FS.BaseDir})
	default:
		return nil, fmt.Errorf("unsupported blob store: %s", c.BlobStore)
	}
}

// buildContentStore creates a ContentStore, wrapped in the cache when enabled
func (c *ServerConfig) buildContentStore() (bridge.ContentStore, error) {
	var store bridge.ContentStore
	switch c.ContentStore {
	case "memory":
		store = contentmemory.New(c.Pinata.GatewayURL)
	case "pinata":
		client, err := pinata.New(pinata.Config{
			JWT:          c.Pinata.JWT,
			UploadURL:    c.Pinata.UploadURL,
			GatewayURL:   c.Pinata.GatewayURL,
			GatewayToken: c.Pinata.GatewayToken,
			Network:      c.Pinata.Network,
		})
		if err != nil {
			return nil, err
		}
		store = client
	default:
		return nil, fmt.Errorf("unsupported content store: %s", c.ContentStore)
	}

	if c.Cache.Enabled {
		return cache.Wrap(store, cache.NewMemoryDatastore(), cache.Config{
			MaxObjectBytes: c.Cache.MaxObjectBytes,
			MaxBytes:       c.Cache.MaxBytes,
			MaxEntries:     c.Cache.MaxEntries,
		})
	}
	return store, nil
}
