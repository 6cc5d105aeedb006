package config

import (
	"path/filepath"
	"strings"
)

// ApplyDefaults fills unset fields with sensible defaults. Explicit
// values are preserved; only zero values are replaced.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyWalkDefaults(&cfg.Walk)
	applyCheckpointDefaults(&cfg.Checkpoint)
	applyHandleDefaults(&cfg.Handle)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)
}

func applyWalkDefaults(cfg *WalkConfig) {
	if cfg.ReportingIncrement == 0 {
		cfg.ReportingIncrement = 10000
	}
}

func applyCheckpointDefaults(cfg *CheckpointConfig) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(getConfigDir(), "checkpoints")
	}
}

func applyHandleDefaults(cfg *HandleConfig) {
	if cfg.ResolverCacheSize == 0 {
		cfg.ResolverCacheSize = 64
	}
}
