package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolateConfigDir points the default config location at a temp dir.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "osfs")
}

func TestLoadDefaults(t *testing.T) {
	isolateConfigDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, uint64(10000), cfg.Walk.ReportingIncrement)
	assert.Equal(t, 64, cfg.Handle.ResolverCacheSize)
	assert.NotEmpty(t, cfg.Checkpoint.Dir)
}

func TestLoadFromFile(t *testing.T) {
	isolateConfigDir(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
logging:
  level: debug
walk:
  mountpoint: /mnt/tank
  filesystem_name: tank/home
  reporting_increment: 500
checkpoint:
  dir: /var/lib/osfs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "/mnt/tank", cfg.Walk.Mountpoint)
	assert.Equal(t, "tank/home", cfg.Walk.FilesystemName)
	assert.Equal(t, uint64(500), cfg.Walk.ReportingIncrement)
	assert.Equal(t, "/var/lib/osfs", cfg.Checkpoint.Dir)
}

func TestEnvOverridesFile(t *testing.T) {
	isolateConfigDir(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	t.Setenv("OSFS_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestValidation(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		ApplyDefaults(cfg)
		return cfg
	}

	t.Run("DefaultsAreValid", func(t *testing.T) {
		assert.NoError(t, Validate(base()))
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "LOUD"
		assert.Error(t, Validate(cfg))
	})

	t.Run("AbsoluteRelativePath", func(t *testing.T) {
		cfg := base()
		cfg.Walk.RelativePath = "/etc"
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be relative")
	})

	t.Run("EscapingRelativePath", func(t *testing.T) {
		cfg := base()
		cfg.Walk.RelativePath = "home/../../etc"
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes the mountpoint")
	})

	t.Run("RelativeMountpoint", func(t *testing.T) {
		cfg := base()
		cfg.Walk.Mountpoint = "mnt/tank"
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absolute")
	})

	t.Run("ZeroResolverCache", func(t *testing.T) {
		cfg := base()
		cfg.Handle.ResolverCacheSize = -1
		assert.Error(t, Validate(cfg))
	})
}

func TestInitConfig(t *testing.T) {
	isolateConfigDir(t)

	path, err := InitConfig(false)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, section := range []string{
		"# osfs Configuration File",
		"logging:",
		"walk:",
		"checkpoint:",
		"handle:",
	} {
		assert.Contains(t, string(content), section)
	}

	// The generated file must be valid YAML and loadable.
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(content, &raw))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestInitConfigAlreadyExists(t *testing.T) {
	isolateConfigDir(t)

	_, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = InitConfig(true)
	assert.NoError(t, err)
}
