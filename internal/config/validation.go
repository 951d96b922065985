package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/utkarsh5026/papply/internal/logging"
)

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field of a Config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks every field and returns ValidationErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := c.Mode(); err != nil {
		add("plan.mode", "must be sequential or pool, got %q", c.Plan.Mode)
	}
	if c.Plan.Workers < 1 {
		add("plan.workers", "must be at least 1, got %d", c.Plan.Workers)
	}
	if _, err := c.Partition(); err != nil {
		add("plan.partition", "must be round-robin or contiguous, got %q", c.Plan.Partition)
	}
	if c.Plan.QueueBuffer < 0 {
		add("plan.queue_buffer", "must not be negative, got %d", c.Plan.QueueBuffer)
	}
	if c.Plan.ShutdownTimeout < 0 {
		add("plan.shutdown_timeout", "must not be negative, got %s", c.Plan.ShutdownTimeout)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if !slices.Contains([]string{"", "console", "json"}, c.Logging.Format) {
		add("logging.format", "must be console or json, got %q", c.Logging.Format)
	}
	if !slices.Contains([]string{"", "stderr", "stdout", "file"}, c.Logging.Output) {
		add("logging.output", "must be stderr, stdout or file, got %q", c.Logging.Output)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		add("logging.file_path", "required when output is file")
	}
	if c.Logging.MaxSizeMB < 0 {
		add("logging.max_size_mb", "must not be negative, got %d", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxBackups < 0 {
		add("logging.max_backups", "must not be negative, got %d", c.Logging.MaxBackups)
	}
	if c.Logging.MaxAgeDays < 0 {
		add("logging.max_age_days", "must not be negative, got %d", c.Logging.MaxAgeDays)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
