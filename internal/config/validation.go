package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/protomod/internal/naming"
)

// Field numbers reserved by the protobuf implementation.
const (
	reservedFieldStart = 19000
	reservedFieldEnd   = 19999
	maxFieldNumber     = 1<<29 - 1
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateNamespace()...)
	errors = append(errors, c.validateCompiler()...)
	errors = append(errors, c.validateModules()...)
	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateNamespace() ValidationErrors {
	var errors ValidationErrors

	if c.Namespace.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "namespace.root",
			Message: "root is required",
		})
	} else if !naming.IsValidIdentity(c.Namespace.Root) {
		errors = append(errors, ValidationError{
			Field:   "namespace.root",
			Message: fmt.Sprintf("%q is not a valid dotted identifier", c.Namespace.Root),
		})
	}

	for _, name := range sortedKeys(c.Namespace.WellKnown) {
		if !naming.IsValidIdentity(name) {
			errors = append(errors, ValidationError{
				Field:   "namespace.well_known",
				Message: fmt.Sprintf("%q is not a valid dotted schema name", name),
			})
		}
		if c.Namespace.WellKnown[name] == "" {
			errors = append(errors, ValidationError{
				Field:   "namespace.well_known." + name,
				Message: "module path is required",
			})
		}
	}

	return errors
}

func (c *Config) validateCompiler() ValidationErrors {
	var errors ValidationErrors

	for i, p := range c.Compiler.IncludePaths {
		if strings.TrimSpace(p) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("compiler.include_paths[%d]", i),
				Message: "include path cannot be empty",
			})
		}
	}

	if c.Compiler.Parallelism < 0 {
		errors = append(errors, ValidationError{
			Field:   "compiler.parallelism",
			Message: "parallelism cannot be negative",
		})
	}

	validKinds := make(map[string]bool, len(CommentOptionKinds))
	for _, k := range CommentOptionKinds {
		validKinds[k] = true
	}
	for _, kind := range sortedKeys(c.Compiler.CommentOptions) {
		field := "compiler.comment_options." + kind
		if !validKinds[kind] {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("kind must be one of: %s", strings.Join(CommentOptionKinds, ", ")),
			})
		}

		num := c.Compiler.CommentOptions[kind]
		if num < 1 || num > maxFieldNumber {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("field number must be between 1 and %d", maxFieldNumber),
			})
		} else if num >= reservedFieldStart && num <= reservedFieldEnd {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("field numbers %d through %d are reserved", reservedFieldStart, reservedFieldEnd),
			})
		}
	}

	return errors
}

func (c *Config) validateModules() ValidationErrors {
	var errors ValidationErrors

	if strings.Contains(c.Modules.Suffix, ".") || (c.Modules.Suffix != "" && !naming.IsValidIdentity("x"+c.Modules.Suffix)) {
		errors = append(errors, ValidationError{
			Field:   "modules.suffix",
			Message: "suffix may only contain letters, digits and underscores",
		})
	}

	return errors
}

func (c *Config) validateLock() ValidationErrors {
	var errors ValidationErrors

	if c.Lock.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.timeout_seconds",
			Message: "timeout_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
