package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	"github.com/dl-alexandre/netdeploy/internal/deploy/scanner"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.toml"
	// StateFileName is the local SQLite database holding the digest cache and deploy history
	StateFileName = "state.db"
)

// Config holds application configuration
type Config struct {
	// SiteID is the site deploys are created for
	SiteID string `toml:"site_id" json:"siteId" yaml:"siteId"`

	// APIBase is the Deploy Service base URL
	APIBase string `toml:"api_base" json:"apiBase" yaml:"apiBase"`

	// Digest is the content digest algorithm (sha1, sha256)
	Digest string `toml:"digest" json:"digest" yaml:"digest"`

	// Concurrency bounds parallel uploads
	Concurrency int `toml:"concurrency" json:"concurrency" yaml:"concurrency"`

	// MaxRetries is the maximum number of retries for an upload
	MaxRetries int `toml:"max_retries" json:"maxRetries" yaml:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `toml:"retry_base_delay" json:"retryBaseDelay" yaml:"retryBaseDelay"`

	// RequestTimeout is the per-request timeout in seconds
	RequestTimeout int `toml:"request_timeout" json:"requestTimeout" yaml:"requestTimeout"`

	Exclude        []string `toml:"exclude" json:"exclude" yaml:"exclude"`
	CommonExcludes bool     `toml:"common_excludes" json:"commonExcludes" yaml:"commonExcludes"`

	// Symlinks is the symlink policy (error, skip)
	Symlinks string `toml:"symlinks" json:"symlinks" yaml:"symlinks"`

	// DigestCache reuses digests of files whose size and mtime are unchanged
	// since the last scan. Off by default: a rewrite that keeps size and
	// mtime would go unnoticed.
	DigestCache bool `toml:"digest_cache" json:"digestCache" yaml:"digestCache"`

	LogLevel     string             `toml:"log_level" json:"logLevel" yaml:"logLevel"`
	OutputFormat types.OutputFormat `toml:"output" json:"output" yaml:"output"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBase:        utils.DefaultAPIBase,
		Digest:         string(digest.DefaultAlgorithm),
		Concurrency:    utils.DefaultConcurrency,
		MaxRetries:     utils.DefaultMaxRetries,
		RetryBaseDelay: utils.DefaultRetryDelayMs,
		RequestTimeout: utils.DefaultRequestTimeoutSeconds,
		Symlinks:       string(scanner.SymlinksError),
		LogLevel:       "info",
		OutputFormat:   types.OutputFormatTable,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// CLI flags are applied on top by the caller. An empty path means the default
// location; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadFromFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads defaults plus the file at path, ignoring the environment.
// It is used when editing the file so env values are not written back.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	md, err := toml.NewDecoder(f).Decode(c)
	if err != nil {
		return fmt.Errorf("could not decode config file '%s': %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q in config file '%s'", undecoded[0].String(), path)
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv(utils.EnvSiteID); v != "" {
		c.SiteID = v
	}
	if v := os.Getenv(utils.EnvPrefix + "API_BASE"); v != "" {
		c.APIBase = v
	}
	if v := os.Getenv(utils.EnvPrefix + "DIGEST"); v != "" {
		c.Digest = v
	}
	if v := os.Getenv(utils.EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(utils.EnvPrefix + "SYMLINKS"); v != "" {
		c.Symlinks = v
	}
	if v := os.Getenv(utils.EnvPrefix + "OUTPUT"); v != "" {
		c.OutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(utils.EnvPrefix + "EXCLUDE"); v != "" {
		c.Exclude = splitList(v)
	}
	if v := os.Getenv(utils.EnvPrefix + "DIGEST_CACHE"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sDIGEST_CACHE %q: %w", utils.EnvPrefix, v, err)
		}
		c.DigestCache = b
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"CONCURRENCY", &c.Concurrency},
		{"MAX_RETRIES", &c.MaxRetries},
		{"RETRY_BASE_DELAY", &c.RetryBaseDelay},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
	}
	for _, e := range ints {
		v := os.Getenv(utils.EnvPrefix + e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", utils.EnvPrefix, e.name, v, err)
		}
		*e.dst = n
	}
	return nil
}

// Save writes the configuration to path, or the default location when path
// is empty.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("could not open config file for writing '%s': %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not persist config to file '%s': %w", path, err)
	}
	return f.Close()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case types.OutputFormatJSON, types.OutputFormatTable, types.OutputFormatYAML:
	default:
		return fmt.Errorf("invalid output format: %s (must be 'json', 'table' or 'yaml')", c.OutputFormat)
	}

	if !strings.HasPrefix(c.APIBase, "http://") && !strings.HasPrefix(c.APIBase, "https://") {
		return fmt.Errorf("api base must be an http(s) URL, got: %q", c.APIBase)
	}

	if c.Concurrency < 1 || c.Concurrency > utils.MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got: %d", utils.MaxConcurrency, c.Concurrency)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if _, err := digest.ParseAlgorithm(c.Digest); err != nil {
		return err
	}
	if _, err := scanner.ParseSymlinkPolicy(c.Symlinks); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Algorithm returns the validated digest algorithm.
func (c *Config) Algorithm() digest.Algorithm {
	a, _ := digest.ParseAlgorithm(c.Digest)
	return a
}

// SymlinkPolicy returns the validated symlink policy.
func (c *Config) SymlinkPolicy() scanner.SymlinkPolicy {
	p, _ := scanner.ParseSymlinkPolicy(c.Symlinks)
	return p
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetStatePath returns the path to the local state database
func GetStatePath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, StateFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(utils.EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "netdeploy"), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
