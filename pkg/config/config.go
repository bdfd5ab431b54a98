package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
)

// Config holds all configuration options for the Unsplash downloader
type Config struct {
	// Unsplash API credentials and endpoint
	Unsplash UnsplashConfig `yaml:"unsplash" json:"unsplash"`

	// Rate limiting and retry configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output and store locations
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// UnsplashConfig holds Unsplash-specific configuration
type UnsplashConfig struct {
	AccessKey  string `yaml:"access_key" json:"access_key"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIVersion string `yaml:"api_version" json:"api_version"`
}

// RateLimitConfig holds rate limiting and retry configuration
type RateLimitConfig struct {
	RequestsPerHour    int           `yaml:"requests_per_hour" json:"requests_per_hour"`
	MinRequestInterval time.Duration `yaml:"min_request_interval" json:"min_request_interval"`
	MaxRetries         int           `yaml:"max_retries" json:"max_retries"`
	BackoffBase        time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax         time.Duration `yaml:"backoff_max" json:"backoff_max"`
	BackoffMultiplier  float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxPages        int           `yaml:"max_pages" json:"max_pages"`
}

// OutputConfig holds filesystem and store locations
type OutputConfig struct {
	BaseDirectory    string `yaml:"base_directory" json:"base_directory"`
	DatabaseFile     string `yaml:"database_file" json:"database_file"`
	EnableURLLogging bool   `yaml:"enable_url_logging" json:"enable_url_logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Unsplash: UnsplashConfig{
			BaseURL:    "https://api.unsplash.com",
			APIVersion: "v1",
		},
		RateLimit: RateLimitConfig{
			RequestsPerHour:    50, // Unsplash demo tier
			MinRequestInterval: 2 * time.Second,
			MaxRetries:         3,
			BackoffBase:        1 * time.Second,
			BackoffMax:         60 * time.Second,
			BackoffMultiplier:  2.0,
		},
		Download: DownloadConfig{
			BatchSize:       10,
			DownloadTimeout: 60 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxPages:        0, // 0 means run until the feed is exhausted
		},
		Output: OutputConfig{
			BaseDirectory:    "./data/images",
			DatabaseFile:     "./data/unsplash.db",
			EnableURLLogging: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if accessKey := os.Getenv("UNSPLASH_ACCESS_KEY"); accessKey != "" {
		c.Unsplash.AccessKey = accessKey
	}

	if batchSize := os.Getenv("BATCH_SIZE"); batchSize != "" {
		if val, err := strconv.Atoi(batchSize); err == nil && val > 0 {
			c.Download.BatchSize = val
		}
	}

	if interval := os.Getenv("REQUEST_INTERVAL"); interval != "" {
		if val, err := strconv.Atoi(interval); err == nil && val > 0 {
			c.RateLimit.MinRequestInterval = time.Duration(val) * time.Second
		}
	}

	if baseDir := os.Getenv("BASE_DOWNLOAD_DIR"); baseDir != "" {
		c.Output.BaseDirectory = baseDir
	}

	if dbFile := os.Getenv("DB_FILE"); dbFile != "" {
		c.Output.DatabaseFile = dbFile
	}

	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if urlLogging := os.Getenv("ENABLE_URL_LOGGING"); urlLogging != "" {
		c.Output.EnableURLLogging = strings.ToLower(urlLogging) == "true"
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".unsplash-downloader.yaml",
		".unsplash-downloader.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "unsplash-downloader", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "unsplash-downloader", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. The access key is checked
// separately by RequireAccessKey since reporting commands run without one.
func (c *Config) Validate() error {
	var errs []error

	if c.Unsplash.BaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}

	if c.RateLimit.RequestsPerHour <= 0 {
		errs = append(errs, errors.New("requests per hour must be positive"))
	}
	if c.RateLimit.MinRequestInterval <= 0 {
		errs = append(errs, errors.New("minimum request interval must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Download.BatchSize <= 0 || c.Download.BatchSize > 30 {
		errs = append(errs, errors.New("batch size must be between 1 and 30"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Output.DatabaseFile == "" {
		errs = append(errs, errors.New("database file is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// RequireAccessKey fails with a configuration error when no access key is
// set. Acquisition cannot start without one.
func (c *Config) RequireAccessKey() error {
	if c.Unsplash.AccessKey == "" {
		return apperrors.New(apperrors.ErrorTypeConfig,
			"Unsplash access key is required: set UNSPLASH_ACCESS_KEY or run 'unsplash-downloader auth set'")
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if accessKey, ok := flags["access-key"].(string); ok && accessKey != "" {
		c.Unsplash.AccessKey = accessKey
	}
	if baseDir, ok := flags["output"].(string); ok && baseDir != "" {
		c.Output.BaseDirectory = baseDir
	}
	if dbFile, ok := flags["database"].(string); ok && dbFile != "" {
		c.Output.DatabaseFile = dbFile
	}
	if batchSize, ok := flags["batch-size"].(int); ok && batchSize > 0 {
		c.Download.BatchSize = batchSize
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Download.MaxPages = maxPages
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".unsplash-downloader.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
