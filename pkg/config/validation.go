package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus custom
// rules that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules enforces constraints across fields.
func validateCustomRules(cfg *Config) error {
	// The walk root must stay below the mountpoint: the relative path
	// may not be absolute and may not climb out with "..".
	rel := cfg.Walk.RelativePath
	if rel != "" {
		if filepath.IsAbs(rel) {
			return fmt.Errorf("walk.relative_path: must be relative, got %q", rel)
		}
		clean := filepath.Clean(rel)
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("walk.relative_path: escapes the mountpoint: %q", rel)
		}
	}

	if cfg.Walk.Mountpoint != "" && !filepath.IsAbs(cfg.Walk.Mountpoint) {
		return fmt.Errorf("walk.mountpoint: must be an absolute path, got %q", cfg.Walk.Mountpoint)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
