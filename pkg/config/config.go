// Package config reads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SourceFile = "file"
	SourceS3   = "s3"
)

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ResourcePrefix is the URL path cached resources are served under.
	ResourcePrefix string `yaml:"resourcePrefix"`

	// ArchiveRoot confines file sources to one directory. Empty means any path.
	ArchiveRoot string `yaml:"archiveRoot"`

	// CompatErrorDocument answers a non-markup archive with the error text as
	// the document instead of a 415.
	CompatErrorDocument bool `yaml:"compatErrorDocument"`

	// InlineImages embeds images as data: URIs instead of resource links.
	InlineImages bool `yaml:"inlineImages"`

	MetricsPath string `yaml:"metricsPath"`

	Log    LogConfig    `yaml:"log"`
	Source SourceConfig `yaml:"source"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SourceConfig struct {
	Kind   string `yaml:"kind"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           4412,
		ResourcePrefix: "/mhtml-resources",
		MetricsPath:    "/metrics",
		Log:            LogConfig{Level: "info", Format: "logfmt"},
		Source:         SourceConfig{Kind: SourceFile},
	}
}

// Load reads path over the defaults. A missing file is not an error: the
// defaults are returned and a warning is logged.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if logger != nil {
			logger.Warn("config file not found, using default configuration", "path", path)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	prefix := strings.Trim(c.ResourcePrefix, "/")
	if !strings.HasPrefix(c.ResourcePrefix, "/") || prefix == "" {
		return fmt.Errorf("resourcePrefix must be an absolute path below /, got %q", c.ResourcePrefix)
	}
	if strings.ContainsAny(prefix, "?#%") {
		return fmt.Errorf("resourcePrefix must not contain query, fragment or escapes, got %q", c.ResourcePrefix)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metricsPath must start with /, got %q", c.MetricsPath)
	}
	switch c.Source.Kind {
	case SourceFile:
	case SourceS3:
		if c.Source.Bucket == "" {
			return errors.New("source.bucket is required for the s3 source")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	return nil
}

// ListenAddress is host:port.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetListenAddress overrides host and port from a host:port string.
func (c *Config) SetListenAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid listen port %q: %w", port, err)
	}
	c.Host, c.Port = host, p
	return nil
}
