// Package config loads the oracle's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "ggl.yaml"

// Config holds all oracle configuration.
type Config struct {
	// Contract sources and pinning
	Contracts ContractsConfig `yaml:"contracts"`

	// Verification defaults
	Oracle OracleConfig `yaml:"oracle"`

	// Batch runs
	Batch BatchConfig `yaml:"batch"`

	// Verdict ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ContractsConfig locates the tokenizer and grammar contracts.
type ContractsConfig struct {
	TokenizerPath string `yaml:"tokenizer_path"`
	GrammarPath   string `yaml:"grammar_path"`

	// PinnedHash, when set, must equal the loaded ABI hash.
	PinnedHash string `yaml:"pinned_hash"`

	// Watch reloads the contracts when either file changes (serve only).
	Watch bool `yaml:"watch"`
}

// OracleConfig configures verification calls.
type OracleConfig struct {
	// WantLower is the default for callers that do not say.
	WantLower bool `yaml:"want_lower"`
}

// BatchConfig configures batch verification.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
}

// LedgerConfig configures the sqlite verdict ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DefaultConfig returns the default configuration. With no contract paths
// set the oracle runs on two empty contracts.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			WantLower: false,
		},

		Batch: BatchConfig{
			Concurrency: 8,
			Timeout:     "10m",
		},

		Ledger: LedgerConfig{
			Enabled: false,
			Path:    ".ggl/ledger.db",
		},

		Server: ServerConfig{
			Addr:         "127.0.0.1:8088",
			ReadTimeout:  "30s",
			MaxBodyBytes: 4 << 20,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Contract sources
	if p := os.Getenv("GGL_TOKENIZER_ABI"); p != "" {
		c.Contracts.TokenizerPath = p
	}
	if p := os.Getenv("GGL_GRAMMAR_ABI"); p != "" {
		c.Contracts.GrammarPath = p
	}
	if h := os.Getenv("GGL_ABI_HASH"); h != "" {
		c.Contracts.PinnedHash = h
	}

	// Ledger path implies the ledger is wanted
	if p := os.Getenv("GGL_LEDGER"); p != "" {
		c.Ledger.Path = p
		c.Ledger.Enabled = true
	}

	if addr := os.Getenv("GGL_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if n := os.Getenv("GGL_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.Batch.Concurrency = v
		}
	}

	if os.Getenv("GGL_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// GetBatchTimeout returns the batch timeout as a duration.
func (c *Config) GetBatchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Batch.Timeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// HasContractFiles reports whether both contract paths are configured.
func (c *Config) HasContractFiles() bool {
	return c.Contracts.TokenizerPath != "" && c.Contracts.GrammarPath != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	tok, gr := c.Contracts.TokenizerPath != "", c.Contracts.GrammarPath != ""
	if tok != gr {
		return fmt.Errorf("tokenizer_path and grammar_path must be set together")
	}
	if c.Contracts.Watch && !tok {
		return fmt.Errorf("contracts.watch requires contract paths")
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path required when the ledger is enabled")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}
