package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Host        string          `json:"host"`
	HTTPPort    int             `json:"httpPort"`
	WSPort      int             `json:"wsPort"`
	LogLevel    string          `json:"logLevel"`
	MaxBodySize int64           `json:"maxBodySize"`
	Batching    *BatchingConfig `json:"batching,omitempty"`
	Cache       *CacheConfig    `json:"cache,omitempty"`
}

// BatchingConfig controls how array payloads are executed.
// It is supplied once per server instance.
type BatchingConfig struct {
	MaxBatchSize *int `json:"maxBatchSize,omitempty"` // absent means DefaultMaxBatchSize, 0 means unbounded
	Parallel     bool `json:"parallel"`
	Timeout      int  `json:"timeout"` // ms, 0 means unbounded
}

// CacheConfig represents method result cache configuration
type CacheConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// Default values
const (
	DefaultName         = "batchrpc"
	DefaultVersion      = "dev"
	DefaultHost         = "localhost"
	DefaultHTTPPort     = 8080
	DefaultWSPort       = 8081
	DefaultLogLevel     = "info"
	DefaultMaxBodySize  = int64(0) // 0 means no limit
	DefaultMaxBatchSize = 100
	DefaultCacheTTL     = 60 // seconds
	DefaultCacheSize    = 1000
)

// GetTimeoutDuration returns the batch timeout as time.Duration
func (c *BatchingConfig) GetTimeoutDuration() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetMaxBatchSize returns the batch size limit, 0 when unbounded
func (c *BatchingConfig) GetMaxBatchSize() int {
	if c == nil || c.MaxBatchSize == nil {
		return 0
	}
	return *c.MaxBatchSize
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
