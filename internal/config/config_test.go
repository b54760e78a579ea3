package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/config"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resolve()
	assert.NoError(t, cfg.Validate())
}

func TestResolve_DerivesPathsFromDataDir(t *testing.T) {
	cfg := &config.Config{DataDir: "/var/lib/coredb"}
	cfg.Resolve()

	assert.Equal(t, filepath.Join("/var/lib/coredb", "wal"), cfg.WAL.Dir)
	assert.Equal(t, filepath.Join("/var/lib/coredb", "catalog.db"), cfg.Catalog.DBPath)
	assert.Equal(t, filepath.Join("/var/lib/coredb", "catalog-snapshots"), cfg.Catalog.SnapshotDir)
	assert.Equal(t, filepath.Join("/var/lib/coredb", "ftindex"), cfg.Index.Dir)
}

func TestResolve_DoesNotOverrideExplicitPaths(t *testing.T) {
	cfg := &config.Config{DataDir: "/var/lib/coredb"}
	cfg.WAL.Dir = "/custom/wal"
	cfg.Resolve()

	assert.Equal(t, "/custom/wal", cfg.WAL.Dir)
}

func TestValidate_RejectsInvalidFlushOption(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resolve()
	cfg.WAL.FlushOption = "sometimes"

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RejectsNonPositiveWALSizeThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resolve()
	cfg.WAL.SizeThresholdBytes = 0

	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEnabledArchiveWithoutBucket(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resolve()
	cfg.Archive.Enabled = true

	assert.Error(t, cfg.Validate())
}

func TestValidate_AllowsEnabledArchiveWithBucket(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resolve()
	cfg.Archive.Enabled = true
	cfg.Archive.Bucket = "coredb-archive"

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
data_dir: /data/coredb
wal:
  flush_option: only_write
  size_threshold_bytes: 1048576
  delta_checkpoint_interval_bytes: 262144
archive:
  enabled: true
  bucket: my-bucket
  region: us-east-1
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/coredb", cfg.DataDir)
	assert.Equal(t, config.FlushOnlyWrite, cfg.WAL.FlushOption)
	assert.Equal(t, int64(1048576), cfg.WAL.SizeThresholdBytes)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "my-bucket", cfg.Archive.Bucket)
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	jsonContent := `{"data_dir": "/data/coredb", "wal": {"flush_option": "per_second"}}`
	require.NoError(t, os.WriteFile(path, []byte(jsonContent), 0644))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/coredb", cfg.DataDir)
	assert.Equal(t, config.FlushPerSecond, cfg.WAL.FlushOption)
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir = \"x\""), 0644))

	_, err := config.LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := config.LoadFromFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnv_OverlaysValues(t *testing.T) {
	t.Setenv("COREDB_DATA_DIR", "/env/data")
	t.Setenv("COREDB_WAL_FLUSH_OPTION", "only_write")
	t.Setenv("COREDB_ARCHIVE_ENABLED", "true")
	t.Setenv("COREDB_ARCHIVE_BUCKET", "env-bucket")

	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)

	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, config.FlushOnlyWrite, cfg.WAL.FlushOption)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "env-bucket", cfg.Archive.Bucket)
}

func TestEnsureDirectories_CreatesAllPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DataDir: filepath.Join(dir, "coredb")}
	cfg.Resolve()

	require.NoError(t, cfg.EnsureDirectories())

	for _, p := range []string{cfg.DataDir, cfg.WAL.Dir, cfg.Catalog.SnapshotDir, cfg.Index.Dir} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
