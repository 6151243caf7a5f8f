package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values
const (
	EnvHost         = "BATCHRPC_HOST"
	EnvHTTPPort     = "BATCHRPC_HTTP_PORT"
	EnvWSPort       = "BATCHRPC_WS_PORT"
	EnvLogLevel     = "BATCHRPC_LOG_LEVEL"
	EnvMaxBatchSize = "BATCHRPC_MAX_BATCH_SIZE"
	EnvParallel     = "BATCHRPC_PARALLEL"
	EnvTimeout      = "BATCHRPC_TIMEOUT"
)

// LoadWithDefaults reads the configuration file if path is not empty,
// applies BATCHRPC_* environment overrides and fills in defaults.
func LoadWithDefaults(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// applyEnv overrides config values from the environment
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvHost); ok {
		cfg.Host = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.LogLevel = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvHTTPPort, &cfg.HTTPPort},
		{EnvWSPort, &cfg.WSPort},
	}
	for _, e := range ints {
		if err := envInt(e.name, e.dst); err != nil {
			return err
		}
	}

	_, hasSize := os.LookupEnv(EnvMaxBatchSize)
	_, hasParallel := os.LookupEnv(EnvParallel)
	_, hasTimeout := os.LookupEnv(EnvTimeout)
	if !hasSize && !hasParallel && !hasTimeout {
		return nil
	}

	if cfg.Batching == nil {
		cfg.Batching = &BatchingConfig{}
	}
	if _, ok := os.LookupEnv(EnvMaxBatchSize); ok {
		var size int
		if err := envInt(EnvMaxBatchSize, &size); err != nil {
			return err
		}
		cfg.Batching.MaxBatchSize = &size
	}
	if err := envInt(EnvTimeout, &cfg.Batching.Timeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvParallel); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvParallel, err)
		}
		cfg.Batching.Parallel = b
	}

	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.WSPort == 0 {
		cfg.WSPort = DefaultWSPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	if cfg.Batching == nil {
		cfg.Batching = &BatchingConfig{}
	}
	if cfg.Batching.MaxBatchSize == nil {
		size := DefaultMaxBatchSize
		cfg.Batching.MaxBatchSize = &size
	}
	// Timeout default is 0 (unbounded), which is valid

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL == 0 {
			cfg.Cache.TTL = DefaultCacheTTL
		}
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("httpPort must be between 1 and 65535")
	}

	if cfg.WSPort < 1 || cfg.WSPort > 65535 {
		return fmt.Errorf("wsPort must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.MaxBodySize < 0 {
		return fmt.Errorf("maxBodySize must be non-negative")
	}

	if cfg.Batching != nil {
		if cfg.Batching.GetMaxBatchSize() < 0 {
			return fmt.Errorf("batching.maxBatchSize must be non-negative")
		}
		if cfg.Batching.Timeout < 0 {
			return fmt.Errorf("batching.timeout must be non-negative")
		}
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}
