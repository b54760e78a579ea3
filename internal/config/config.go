// Package config provides unified configuration for the coredb engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlushOption mirrors internal/wal.FlushOption as a config-file-friendly
// string enum.
type FlushOption string

const (
	FlushAtOnce     FlushOption = "at_once"
	FlushOnlyWrite  FlushOption = "only_write"
	FlushPerSecond  FlushOption = "per_second"
)

// Config holds the unified configuration for the engine process.
type Config struct {
	// DataDir is the base directory for all data files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	WAL        WALConfig        `json:"wal" yaml:"wal"`
	Catalog    CatalogConfig    `json:"catalog" yaml:"catalog"`
	Index      IndexConfig      `json:"index" yaml:"index"`
	Bufmgr     BufmgrConfig     `json:"bufmgr" yaml:"bufmgr"`
	Archive    ArchiveConfig    `json:"archive" yaml:"archive"`
	Workers    WorkersConfig    `json:"workers" yaml:"workers"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
}

// HTTPConfig holds the health/stats HTTP endpoint configuration. Addr
// empty disables the endpoint entirely.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// WALConfig holds write-ahead log configuration.
type WALConfig struct {
	// Dir is the directory the WAL registry manages.
	Dir string `json:"dir" yaml:"dir"`

	// FlushOption controls fsync aggressiveness: at_once, only_write, per_second.
	FlushOption FlushOption `json:"flush_option" yaml:"flush_option"`

	// SizeThresholdBytes rotates the current file once it grows past this.
	SizeThresholdBytes int64 `json:"size_threshold_bytes" yaml:"size_threshold_bytes"`

	// DeltaCheckpointIntervalBytes triggers a delta checkpoint once WAL
	// growth since the last checkpoint exceeds this many bytes.
	DeltaCheckpointIntervalBytes int64 `json:"delta_checkpoint_interval_bytes" yaml:"delta_checkpoint_interval_bytes"`
}

// CatalogConfig holds catalog storage configuration.
type CatalogConfig struct {
	// DBPath is the live SQLite catalog database file.
	DBPath string `json:"db_path" yaml:"db_path"`

	// SnapshotDir holds checkpoint catalog snapshot files.
	SnapshotDir string `json:"snapshot_dir" yaml:"snapshot_dir"`
}

// IndexConfig holds full-text index reader configuration.
type IndexConfig struct {
	// Dir is the base directory term dictionaries are read from.
	Dir string `json:"dir" yaml:"dir"`
}

// BufmgrConfig holds buffer manager cache configuration.
type BufmgrConfig struct {
	// MaxBytes bounds resident column-entry cache size.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
}

// WorkersConfig holds background task processor configuration.
type WorkersConfig struct {
	// NumWorkers is the size of the checkpoint/compaction worker pool.
	// Zero means GOMAXPROCS.
	NumWorkers int `json:"num_workers" yaml:"num_workers"`
}

// ArchiveConfig holds optional S3-compatible off-box archival settings.
type ArchiveConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	Region        string `json:"region" yaml:"region"`
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle  bool   `json:"use_path_style" yaml:"use_path_style"`
	WALPrefix     string `json:"wal_prefix" yaml:"wal_prefix"`
	CatalogPrefix string `json:"catalog_prefix" yaml:"catalog_prefix"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/coredb",
		WAL: WALConfig{
			FlushOption:                  FlushAtOnce,
			SizeThresholdBytes:           64 * 1024 * 1024,
			DeltaCheckpointIntervalBytes: 16 * 1024 * 1024,
		},
		Bufmgr: BufmgrConfig{
			MaxBytes: 256 * 1024 * 1024,
		},
		Archive: ArchiveConfig{
			WALPrefix:     "wal/",
			CatalogPrefix: "catalog/",
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:7280",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/coredb"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = filepath.Join(c.DataDir, "wal")
	}
	if c.Catalog.DBPath == "" {
		c.Catalog.DBPath = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Catalog.SnapshotDir == "" {
		c.Catalog.SnapshotDir = filepath.Join(c.DataDir, "catalog-snapshots")
	}
	if c.Index.Dir == "" {
		c.Index.Dir = filepath.Join(c.DataDir, "ftindex")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.WAL.FlushOption {
	case FlushAtOnce, FlushOnlyWrite, FlushPerSecond:
	default:
		return fmt.Errorf("invalid wal.flush_option: %s (must be at_once, only_write, or per_second)", c.WAL.FlushOption)
	}

	if c.WAL.SizeThresholdBytes <= 0 {
		return fmt.Errorf("wal.size_threshold_bytes must be positive, got %d", c.WAL.SizeThresholdBytes)
	}
	if c.WAL.DeltaCheckpointIntervalBytes <= 0 {
		return fmt.Errorf("wal.delta_checkpoint_interval_bytes must be positive, got %d", c.WAL.DeltaCheckpointIntervalBytes)
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.enabled is true")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables (COREDB_ prefix) onto cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("COREDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COREDB_WAL_DIR"); v != "" {
		cfg.WAL.Dir = v
	}
	if v := os.Getenv("COREDB_WAL_FLUSH_OPTION"); v != "" {
		cfg.WAL.FlushOption = FlushOption(v)
	}
	if v := os.Getenv("COREDB_WAL_SIZE_THRESHOLD_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.WAL.SizeThresholdBytes)
	}
	if v := os.Getenv("COREDB_WAL_DELTA_CHECKPOINT_INTERVAL_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.WAL.DeltaCheckpointIntervalBytes)
	}
	if v := os.Getenv("COREDB_CATALOG_DB_PATH"); v != "" {
		cfg.Catalog.DBPath = v
	}
	if v := os.Getenv("COREDB_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("COREDB_WORKERS_NUM"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Workers.NumWorkers)
	}
	if v := os.Getenv("COREDB_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("COREDB_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("COREDB_ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("COREDB_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("COREDB_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.WAL.Dir, c.Catalog.SnapshotDir, c.Index.Dir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
