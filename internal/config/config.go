// Package config provides configuration management for Tessera using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports a YAML file (.tessera.yml), environment
// variable overrides with the TESSERA_ prefix, defaults, and validation. It
// covers template discovery, rendering limits, the watch loop, the preview
// server, and logging.
package config

import (
	stderrors "errors"
	"io"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
)

const (
	// FileName is the base name of the configuration file, without extension.
	FileName = ".tessera"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TESSERA"
	// DefaultMaxDepth bounds nested template expansion.
	DefaultMaxDepth = 256
)

type Config struct {
	Templates TemplatesConfig `yaml:"templates" mapstructure:"templates"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

type TemplatesConfig struct {
	Paths           []string `yaml:"paths" mapstructure:"paths"`
	Extensions      []string `yaml:"extensions" mapstructure:"extensions"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	Workers         int      `yaml:"workers" mapstructure:"workers"`
}

type RenderConfig struct {
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
	// Output is a file path, or "-" for stdout.
	Output string `yaml:"output" mapstructure:"output"`
}

type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

type ServerConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	LiveReload bool   `yaml:"live_reload" mapstructure:"live_reload"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	v.SetDefault("templates.paths", []string{"./templates"})
	v.SetDefault("templates.extensions", []string{".html"})
	v.SetDefault("templates.exclude_patterns", []string{"*.bak", ".*"})
	v.SetDefault("templates.workers", workers)
	v.SetDefault("render.max_depth", DefaultMaxDepth)
	v.SetDefault("render.output", "-")
	v.SetDefault("watch.debounce_ms", 300)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.live_reload", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Setup points v at the configuration file and environment. An empty
// cfgFile falls back to TESSERA_CONFIG_FILE and then to .tessera.yml in the
// working directory. A missing default file is not an error; a missing
// explicit file is.
func Setup(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := cfgFile != ""
	if !explicit {
		cfgFile = v.GetString("config_file")
		explicit = cfgFile != ""
	}

	if explicit {
		v.SetConfigFile(filepath.Clean(cfgFile))
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && stderrors.As(err, &notFound) {
			return nil
		}
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to read configuration")
	}
	return nil
}

// Load unmarshals the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, fills unset values, and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	applyDefaults(&config)

	result := ValidateConfigWithDetails(&config)
	if result.HasErrors() {
		first := result.Errors[0]
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration: "+first.Error()).
			WithContext("field", first.Field).
			WithContext("errors", len(result.Errors))
	}

	return &config, nil
}

// applyDefaults covers values a caller cleared explicitly, e.g. an empty
// list in the file.
func applyDefaults(config *Config) {
	if len(config.Templates.Paths) == 0 {
		config.Templates.Paths = []string{"./templates"}
	}
	if len(config.Templates.Extensions) == 0 {
		config.Templates.Extensions = []string{".html"}
	}
	for i, ext := range config.Templates.Extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			config.Templates.Extensions[i] = "." + ext
		}
	}
	if config.Render.MaxDepth == 0 {
		config.Render.MaxDepth = DefaultMaxDepth
	}
	if config.Render.Output == "" {
		config.Render.Output = "-"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	config.Log.Level = strings.ToLower(config.Log.Level)
	config.Log.Format = strings.ToLower(config.Log.Format)
}

// LoggerConfig translates the log section for the logging package.
func (c *Config) LoggerConfig(out io.Writer) *logging.LoggerConfig {
	level, _ := logging.ParseLevel(c.Log.Level)
	return &logging.LoggerConfig{
		Level:  level,
		Format: c.Log.Format,
		Output: out,
	}
}

// Debounce returns the watch debounce delay.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// Address returns host:port for the preview server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
