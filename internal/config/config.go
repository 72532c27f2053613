// Package config handles configuration loading and validation for runvault.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runvault/runvault/pkg/bytesize"
)

// AuditConfig holds configuration for the audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Audit log file; empty logs to the main log stream
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LimitsConfig holds request throttling and payload limits.
type LimitsConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	Burst             int           `yaml:"burst"`
	MaxObjectSize     bytesize.Size `yaml:"max_object_size"` // 0 = unlimited
}

// NFSConfig holds configuration for the read-only NFS browse gateway.
type NFSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SharesConfig holds configuration for time-limited download links.
type SharesConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DefaultTTL string `yaml:"default_ttl"` // Duration string, e.g. "24h"
}

// TraceConfig holds configuration for the runtime flight recorder.
type TraceConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BufferSize bytesize.Size `yaml:"buffer_size"` // Trace ring buffer; 0 uses the built-in default
}

// ServerConfig holds configuration for the runvault server.
type ServerConfig struct {
	Name      string        `yaml:"name"`       // Node name for logs and metrics
	Listen    string        `yaml:"listen"`     // HTTP listen address
	DataDir   string        `yaml:"data_dir"`   // Store root (default: /var/lib/runvault)
	URIRoot   string        `yaml:"uri_root"`   // Logical prefix stripped from object URIs
	AuthToken string        `yaml:"auth_token"` // Bearer token for the API
	LogLevel  string        `yaml:"log_level"`  // trace, debug, info, warn, error
	LogFormat string        `yaml:"log_format"` // console or json
	Audit     AuditConfig   `yaml:"audit"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Limits    LimitsConfig  `yaml:"limits"`
	NFS       NFSConfig     `yaml:"nfs"`
	Shares    SharesConfig  `yaml:"shares"`
	Trace     TraceConfig   `yaml:"trace"`
}

// LoadServerConfig loads server configuration from a YAML file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &ServerConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields with their default values and expands
// home-relative paths.
func (c *ServerConfig) ApplyDefaults() {
	if c.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Name = host
		} else {
			c.Name = "runvault"
		}
	}
	if c.Listen == "" {
		c.Listen = ":8700"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/runvault"
	}
	c.DataDir = expandHome(c.DataDir)
	if c.URIRoot == "" {
		c.URIRoot = "/"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Audit.Path != "" {
		c.Audit.Path = expandHome(c.Audit.Path)
	}
	// Metrics enabled by default
	if !c.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if c.Limits.RequestsPerSecond > 0 && c.Limits.Burst == 0 {
		c.Limits.Burst = 32
	}
	if c.NFS.Enabled && c.NFS.Listen == "" {
		c.NFS.Listen = ":2049"
	}
	if c.Shares.DefaultTTL == "" {
		c.Shares.DefaultTTL = "24h"
	}
}

// Validate checks if the server configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth_token is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data_dir must be an absolute path")
	}
	if !strings.HasPrefix(c.URIRoot, "/") {
		return fmt.Errorf("uri_root must start with /")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json")
	}
	if c.Limits.RequestsPerSecond < 0 {
		return fmt.Errorf("limits.requests_per_second must not be negative")
	}
	if c.Limits.MaxObjectSize < 0 {
		return fmt.Errorf("limits.max_object_size must not be negative")
	}
	if c.Trace.BufferSize < 0 {
		return fmt.Errorf("trace.buffer_size must not be negative")
	}
	if _, err := c.ShareTTL(); err != nil {
		return fmt.Errorf("invalid shares.default_ttl: %w", err)
	}
	return nil
}

// ShareTTL returns the parsed default share-link lifetime.
func (c *ServerConfig) ShareTTL() (time.Duration, error) {
	return time.ParseDuration(c.Shares.DefaultTTL)
}

// expandHome expands a leading "~/" to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
