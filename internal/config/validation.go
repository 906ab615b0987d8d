package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/tessera/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails checks every section and collects all problems.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateTemplatesConfig(&config.Templates, result)
	validateRenderConfig(&config.Render, result)
	validateWatchConfig(&config.Watch, result)
	validateServerConfig(&config.Server, result)
	validateLogConfig(&config.Log, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateTemplatesConfig(config *TemplatesConfig, result *ValidationResult) {
	for i, path := range config.Paths {
		field := fmt.Sprintf("templates.paths[%d]", i)
		if strings.TrimSpace(path) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:       field,
				Value:       path,
				Message:     "empty template path",
				Suggestions: []string{"Remove the entry or point it at a directory such as './templates'"},
			})
			continue
		}
		if !pathExists(path) {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   field,
				Value:   path,
				Message: "directory does not exist",
				Suggestions: []string{
					"Create the directory: mkdir -p " + path,
					"Check for typos in the path",
				},
			})
		}
	}

	for i, ext := range config.Extensions {
		if ext == "" || ext == "." || strings.ContainsAny(ext, `/\*?[`) {
			result.Errors = append(result.Errors, ValidationError{
				Field:       fmt.Sprintf("templates.extensions[%d]", i),
				Value:       ext,
				Message:     fmt.Sprintf("invalid file extension %q", ext),
				Suggestions: []string{"Use a plain extension such as '.html'"},
			})
		}
	}

	for i, pattern := range config.ExcludePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       fmt.Sprintf("templates.exclude_patterns[%d]", i),
				Value:       pattern,
				Message:     "malformed glob pattern",
				Suggestions: []string{"Patterns follow filepath.Match syntax, e.g. '*.bak'"},
			})
		}
	}

	if config.Workers < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "templates.workers",
			Value:       config.Workers,
			Message:     "worker count cannot be negative",
			Suggestions: []string{"Use 0 to pick a count from the number of CPUs"},
		})
	}
}

func validateRenderConfig(config *RenderConfig, result *ValidationResult) {
	if config.MaxDepth < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "render.max_depth",
			Value:       config.MaxDepth,
			Message:     "max depth must be at least 1",
			Suggestions: []string{fmt.Sprintf("The default is %d", DefaultMaxDepth)},
		})
	} else if config.MaxDepth > 100000 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "render.max_depth",
			Value:   config.MaxDepth,
			Message: "very deep expansion may exhaust the stack before the limit triggers",
		})
	}
}

func validateWatchConfig(config *WatchConfig, result *ValidationResult) {
	if config.DebounceMS < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "watch.debounce_ms",
			Value:       config.DebounceMS,
			Message:     "debounce cannot be negative",
			Suggestions: []string{"Use 300 for editors that write in several steps"},
		})
	}
}

func validateServerConfig(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     "port below 1024 requires elevated privileges",
			Suggestions: []string{"Consider using a port above 1024 for development"},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.level",
			Value:       config.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use one of debug, info, warn, error"},
		})
	}
	if config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.format",
			Value:       config.Format,
			Message:     fmt.Sprintf("unknown log format %q", config.Format),
			Suggestions: []string{"Use 'text' or 'json'"},
		})
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
