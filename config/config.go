package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the pricing service configuration.
type Config struct {
	EstimatorURL       string        `yaml:"estimator_url"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax    time.Duration `yaml:"retry_backoff_max"`
	UserAgent          string        `yaml:"user_agent"`
	Parallelism        int           `yaml:"parallelism"`
	PipelineBufferSize int           `yaml:"pipeline_buffer_size"`
	BatchSize          int           `yaml:"batch_size"`
	DedupeMaxSize      int           `yaml:"dedupe_max_size"`
	CacheSize          int           `yaml:"cache_size"`
	Currency           string        `yaml:"currency"`
	OutputFile         string        `yaml:"output_file"`
	OutputFormat       string        `yaml:"output_format"` // csv, json, or dual
	ListenAddr         string        `yaml:"listen_addr"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	Verbose            bool          `yaml:"verbose"`
}

// DefaultConfig returns defaults matching a local estimator backend.
func DefaultConfig() *Config {
	return &Config{
		EstimatorURL:       "http://localhost:5005/estimate-price-from-scrape",
		Timeout:            20 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		UserAgent:          "crafthub-pricing/1.0",
		Parallelism:        4,
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      10000,
		CacheSize:          512,
		Currency:           "EUR",
		OutputFile:         "output/reports.csv",
		OutputFormat:       "csv",
		ListenAddr:         ":8080",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.EstimatorURL == "" {
		return fmt.Errorf("estimator URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.EstimatorURL)
	if err != nil {
		return fmt.Errorf("invalid estimator URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("estimator URL must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	return nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides c with PRICING_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("PRICING_ESTIMATOR_URL"); ok {
		c.EstimatorURL = v
	}
	if v, ok, err := EnvDuration("PRICING_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = v
	}
	if v, ok, err := EnvInt("PRICING_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.MaxRetries = v
	}
	if v, ok, err := EnvInt("PRICING_PARALLEL"); err != nil {
		return err
	} else if ok {
		c.Parallelism = v
	}
	if v, ok, err := EnvInt("PRICING_CACHE_SIZE"); err != nil {
		return err
	} else if ok {
		c.CacheSize = v
	}
	if v, ok := EnvString("PRICING_CURRENCY"); ok {
		c.Currency = v
	}
	if v, ok := EnvString("PRICING_OUTPUT"); ok {
		c.OutputFile = v
	}
	if v, ok := EnvString("PRICING_LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := EnvString("PRICING_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

// EnvString returns a trimmed, non-empty environment variable.
func EnvString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", false
	}
	return v, true
}

// EnvInt parses an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses a duration environment variable such as "15s".
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}
