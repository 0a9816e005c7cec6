package config

import (
	"errors"
	"time"
)

// WithPort sets the HTTP listen port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase sets the database URL ("memory" or a postgres URL) and schema
func WithDatabase(url, schema string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = url
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStores uses in-memory blob and content stores
func WithMemoryStores() Option {
	return func(c *ServerConfig) error {
		c.BlobStore = "memory"
		c.ContentStore = "memory"
		return nil
	}
}

// WithS3 selects the S3 blob store
func WithS3(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return errors.New("bucket cannot be empty")
		}
		c.BlobStore = "s3"
		c.S3.Bucket = bucket
		if region != "" {
			c.S3.Region = region
		}
		return nil
	}
}

// WithFilesystem selects the filesystem blob store rooted at baseDir
func WithFilesystem(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return errors.New("base directory cannot be empty")
		}
		c.BlobStore = "fs"
		c.FS.BaseDir = baseDir
		return nil
	}
}

// WithS3Endpoint points the S3 client at an S3-compatible service such as MinIO
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithPinata selects the Pinata content store
func WithPinata(jwt, gatewayURL string) Option {
	return func(c *ServerConfig) error {
		if jwt == "" {
			return errors.New("pinata JWT cannot be empty")
		}
		c.ContentStore = "pinata"
		c.Pinata.JWT = jwt
		if gatewayURL != "" {
			c.Pinata.GatewayURL = gatewayURL
		}
		return nil
	}
}

// WithContentCache enables the in-memory content cache
func WithContentCache(maxObjectBytes int64) Option {
	return func(c *ServerConfig) error {
		c.Cache.Enabled = true
		if maxObjectBytes > 0 {
			c.Cache.MaxObjectBytes = maxObjectBytes
		}
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout
func WithRequestTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.RequestTimeout = d
		return nil
	}
}
