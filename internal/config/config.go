// Manages server configuration stored in server_config.json.

// Package config loads and validates the server-wide settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the name of the settings file inside the data directory.
const FileName = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// Store configures the table store backing file.
	Store StoreConfig `json:"store"`

	// Quotas defines request limits.
	Quotas Quotas `json:"quotas"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// History configures the commit author used when history is enabled.
	History HistoryConfig `json:"history"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable behind a reverse proxy that sets them.
	TrustProxyHeaders bool `json:"trust_proxy_headers"`
}

// StoreConfig configures the table store.
type StoreConfig struct {
	// File is the data file name, relative to the data directory.
	File string `json:"file"`
	// Indent selects pretty-printed snapshots.
	Indent bool `json:"indent"`
}

// Validate checks that the file name is a plain name.
func (s *StoreConfig) Validate() error {
	if s.File == "" {
		return errors.New("file is required")
	}
	if strings.ContainsAny(s.File, `/\`) || s.File == "." || s.File == ".." {
		return fmt.Errorf("file must be a plain file name, got %q", s.File)
	}
	return nil
}

// Quotas defines request limits.
type Quotas struct {
	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	// 0 means unlimited.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`
}

// Validate checks that quota values are non-negative.
func (q *Quotas) Validate() error {
	if q.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	return nil
}

// RateLimits defines rate limiting configuration (requests per minute per
// client IP).
type RateLimits struct {
	// WriteRatePerMin limits POST/PUT/DELETE requests.
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// ReadRatePerMin limits GET requests.
	// 0 means unlimited.
	ReadRatePerMin int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// HistoryConfig configures the history repository.
type HistoryConfig struct {
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
}

// Validate checks that an author is set.
func (h *HistoryConfig) Validate() error {
	if h.AuthorName == "" {
		return errors.New("author_name is required")
	}
	if h.AuthorEmail == "" {
		return errors.New("author_email is required")
	}
	return nil
}

// Default returns the configuration written on first start.
func Default() ServerConfig {
	return ServerConfig{
		Store: StoreConfig{
			File:   "database.json",
			Indent: true,
		},
		Quotas: Quotas{
			MaxRequestBodyBytes: 1024 * 1024, // 1 MiB
		},
		RateLimits: RateLimits{
			WriteRatePerMin: 600,  // 10 req/s
			ReadRatePerMin:  6000, // 100 req/s
		},
		History: HistoryConfig{
			AuthorName:  "jsondb",
			AuthorEmail: "jsondb@localhost",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// StorePath returns the absolute or relative path of the data file.
func (c *ServerConfig) StorePath(dataDir string) string {
	return filepath.Join(dataDir, c.Store.File)
}

// Load loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist. Fields missing from an
// existing file keep their default value.
func Load(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
