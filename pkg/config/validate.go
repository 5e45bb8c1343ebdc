package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "tracking.endpoint" or "env.LOGFAN_HTTP_BATCH_SIZE"
	Message string // e.g., "must not be empty"
	Hint    string // e.g., "set LOGFAN_TRACKING_ENDPOINT or tracking.endpoint"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to
// print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateGeneral()...)
	errs = append(errs, c.validateLevels()...)
	errs = append(errs, c.validateConsole()...)
	errs = append(errs, c.validateHTTP()...)
	errs = append(errs, c.validateFile()...)
	errs = append(errs, c.validateTracking()...)
	errs = append(errs, c.validateRedact()...)
	errs = append(errs, c.validateRollout()...)

	return errs
}

func (c *Config) validateGeneral() []error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, ValidationError{
			Path:    "environment",
			Message: fmt.Sprintf("invalid value %q", c.Environment),
			Hint:    "allowed values: development, staging, production",
		})
	}

	switch c.Role {
	case RoleClient, RoleServer:
	default:
		errs = append(errs, ValidationError{
			Path:    "role",
			Message: fmt.Sprintf("invalid value %q", c.Role),
			Hint:    "allowed values: client, server",
		})
	}

	return errs
}

func (c *Config) validateLevels() []error {
	var errs []error

	if _, err := logging.ParseLevel(c.Levels.Client); err != nil {
		errs = append(errs, ValidationError{
			Path:    "levels.client",
			Message: fmt.Sprintf("invalid value %q", c.Levels.Client),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}
	if _, err := logging.ParseLevel(c.Levels.Server); err != nil {
		errs = append(errs, ValidationError{
			Path:    "levels.server",
			Message: fmt.Sprintf("invalid value %q", c.Levels.Server),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	return errs
}

func (c *Config) validateConsole() []error {
	var errs []error

	switch c.Console.Colors {
	case ColorsAuto, ColorsAlways, ColorsNever:
	default:
		errs = append(errs, ValidationError{
			Path:    "console.colors",
			Message: fmt.Sprintf("invalid value %q", c.Console.Colors),
			Hint:    "allowed values: auto, always, never",
		})
	}

	return errs
}

func (c *Config) validateHTTP() []error {
	var errs []error
	hc := c.HTTP

	// The HTTP sink only runs on clients with file delivery enabled,
	// so its endpoint is only required then.
	if c.Role == RoleClient && c.Features.File && hc.Endpoint == "" {
		errs = append(errs, ValidationError{
			Path:    "http.endpoint",
			Message: "required when features.file is enabled for the client role",
			Hint:    "set http.endpoint or LOGFAN_HTTP_ENDPOINT, or disable features.file",
		})
	}
	if hc.BatchSize < 1 {
		errs = append(errs, ValidationError{
			Path:    "http.batch_size",
			Message: fmt.Sprintf("must be >= 1; got %d", hc.BatchSize),
		})
	}
	if hc.FlushInterval <= 0 {
		errs = append(errs, ValidationError{
			Path:    "http.flush_interval",
			Message: fmt.Sprintf("must be > 0; got %v", hc.FlushInterval),
			Hint:    "recommended: 5s",
		})
	}
	if hc.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Path:    "http.max_retries",
			Message: fmt.Sprintf("must be >= 0; got %d", hc.MaxRetries),
		})
	}

	return errs
}

func (c *Config) validateFile() []error {
	var errs []error
	fc := c.File

	if c.Role == RoleServer && c.Features.File {
		if fc.Path == "" {
			errs = append(errs, ValidationError{
				Path:    "file.path",
				Message: "required when features.file is enabled for the server role",
				Hint:    "set file.path or LOGFAN_FILE_PATH, or disable features.file",
			})
		} else {
			dir := filepath.Dir(fc.Path)
			if dir != "" && dir != "." {
				if err := validateDirUsable(dir); err != nil {
					errs = append(errs, ValidationError{
						Path:    "file.path",
						Message: err.Error(),
					})
				}
			}
		}
	}
	if fc.MaxSize <= 0 {
		errs = append(errs, ValidationError{
			Path:    "file.max_size",
			Message: fmt.Sprintf("must be > 0; got %d", fc.MaxSize),
		})
	}
	if fc.MaxFiles < 1 {
		errs = append(errs, ValidationError{
			Path:    "file.max_files",
			Message: fmt.Sprintf("must be >= 1; got %d", fc.MaxFiles),
		})
	}
	if fc.QueueSize < 1 {
		errs = append(errs, ValidationError{
			Path:    "file.queue_size",
			Message: fmt.Sprintf("must be >= 1; got %d", fc.QueueSize),
		})
	}

	return errs
}

func (c *Config) validateTracking() []error {
	var errs []error
	tc := c.Tracking

	if c.Features.ErrorTracking {
		if tc.Endpoint == "" {
			errs = append(errs, ValidationError{
				Path:    "tracking.endpoint",
				Message: "required when features.error_tracking is enabled",
				Hint:    "set tracking.endpoint or disable features.error_tracking",
			})
		}
		if tc.Key == "" {
			errs = append(errs, ValidationError{
				Path:    "tracking.key",
				Message: "required when features.error_tracking is enabled",
				Hint:    "set tracking.key or LOGFAN_TRACKING_KEY",
			})
		}
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		errs = append(errs, ValidationError{
			Path:    "tracking.sample_rate",
			Message: fmt.Sprintf("must be between 0 and 1; got %v", tc.SampleRate),
		})
	}
	if tc.BreadcrumbLimit < 1 {
		errs = append(errs, ValidationError{
			Path:    "tracking.breadcrumb_limit",
			Message: fmt.Sprintf("must be >= 1; got %d", tc.BreadcrumbLimit),
		})
	}

	return errs
}

func (c *Config) validateRedact() []error {
	var errs []error
	rc := c.Redact

	if rc.MaxDepth < 1 {
		errs = append(errs, ValidationError{
			Path:    "redact.max_depth",
			Message: fmt.Sprintf("must be >= 1; got %d", rc.MaxDepth),
		})
	}
	if rc.MaxStringLen < 16 {
		errs = append(errs, ValidationError{
			Path:    "redact.max_string_len",
			Message: fmt.Sprintf("must be >= 16; got %d", rc.MaxStringLen),
			Hint:    "shorter limits would truncate the redaction placeholders themselves",
		})
	}
	if rc.MaxArrayLen < 1 {
		errs = append(errs, ValidationError{
			Path:    "redact.max_array_len",
			Message: fmt.Sprintf("must be >= 1; got %d", rc.MaxArrayLen),
		})
	}

	return errs
}

func (c *Config) validateRollout() []error {
	var errs []error

	if c.Rollout.Percentage < 0 || c.Rollout.Percentage > 100 {
		errs = append(errs, ValidationError{
			Path:    "rollout.percentage",
			Message: fmt.Sprintf("must be between 0 and 100; got %d", c.Rollout.Percentage),
		})
	}
	for i, comp := range c.Rollout.Components {
		if comp == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("rollout.components[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	return errs
}

// Helper validation functions

func validateDirUsable(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		// Created at runtime; only reject when the parent is plainly
		// not a directory.
		parent := filepath.Dir(path)
		if pinfo, perr := os.Stat(parent); perr == nil && !pinfo.IsDir() {
			return fmt.Errorf("parent path is not a directory")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory")
	}
	return nil
}
