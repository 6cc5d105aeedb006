package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultConfigTemplate is the annotated config file written by
// InitConfig. It mirrors ApplyDefaults; a freshly written file loads to
// the same configuration as no file at all.
const defaultConfigTemplate = `# osfs Configuration File
#
# Every value can be overridden with an OSFS_* environment variable,
# e.g. OSFS_LOGGING_LEVEL=DEBUG.

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO

walk:
  # Default mountpoint for 'osfs walk' (empty: pass --mountpoint)
  mountpoint: ""

  # When set, the walk verifies the mount is backed by this filesystem
  # source (e.g. a ZFS dataset name)
  filesystem_name: ""

  # Start the walk below the mountpoint (relative, no "..")
  relative_path: ""

  # Skip files created after this Unix timestamp (0: disabled)
  btime_cutoff: 0

  # Progress report / checkpoint frequency, in yielded entries
  reporting_increment: 10000

checkpoint:
  # BadgerDB directory holding walk checkpoints
  dir: "%s"

handle:
  # Mount-fd cache size of the handle resolver
  resolver_cache_size: 64
`

// InitConfig writes the default configuration file to the default
// location and returns its path. An existing file is only replaced when
// force is set.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()

	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(GetConfigDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(defaultConfigTemplate,
		filepath.Join(GetConfigDir(), "checkpoints"))

	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}
