package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Catalog.Type == "badger" && cfg.Catalog.Enabled {
		inMemory, _ := cfg.Catalog.Badger["in_memory"].(bool)
		if p, _ := cfg.Catalog.Badger["db_path"].(string); p == "" && !inMemory {
			return fmt.Errorf("catalog.badger: db_path is required unless in_memory is set")
		}
	}

	for i, sink := range cfg.Report.Sinks {
		switch sink.Type {
		case "file":
			if format, ok := sink.File["format"].(string); ok && format != "json" && format != "yaml" {
				return fmt.Errorf("report.sinks[%d]: unknown format %q (want json or yaml)", i, format)
			}
		case "s3":
			if b, _ := sink.S3["bucket"].(string); b == "" {
				return fmt.Errorf("report.sinks[%d]: s3 bucket is required", i)
			}
		}
	}

	if cfg.Crawler.RateLimit > 0 && cfg.Crawler.RateLimit < 1 {
		return fmt.Errorf("crawler.rate_limit: must be 0 (unlimited) or at least 1 per second")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
