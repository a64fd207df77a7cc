package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "empty estimator url",
			mutate: func(cfg *Config) {
				cfg.EstimatorURL = ""
			},
			wantErr: "estimator URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.EstimatorURL = "http://"
			},
			wantErr: "estimator URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 5 * time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "zero cache",
			mutate: func(cfg *Config) {
				cfg.CacheSize = 0
			},
			wantErr: "cache size",
		},
		{
			name: "bad currency",
			mutate: func(cfg *Config) {
				cfg.Currency = "EURO"
			},
			wantErr: "currency",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "estimator_url: http://estimator.test/estimate-price-from-scrape\n" +
		"timeout: 5s\n" +
		"parallelism: 8\n" +
		"currency: USD\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.EstimatorURL != "http://estimator.test/estimate-price-from-scrape" {
		t.Fatalf("estimator url = %q", cfg.EstimatorURL)
	}
	if cfg.Timeout != 5*time.Second || cfg.Parallelism != 8 || cfg.Currency != "USD" {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.BatchSize != DefaultConfig().BatchSize {
		t.Fatalf("absent keys should keep defaults, batch size = %d", cfg.BatchSize)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PRICING_ESTIMATOR_URL", "http://env.test/estimate")
	t.Setenv("PRICING_TIMEOUT", "3s")
	t.Setenv("PRICING_PARALLEL", "6")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.EstimatorURL != "http://env.test/estimate" || cfg.Timeout != 3*time.Second || cfg.Parallelism != 6 {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("PRICING_PARALLEL", "many")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "PRICING_PARALLEL") {
		t.Fatalf("expected PRICING_PARALLEL error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("PRICING_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PRICING_TEST_DOTENV") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got, _ := EnvString("PRICING_TEST_DOTENV"); got != "loaded" {
		t.Fatalf("PRICING_TEST_DOTENV = %q", got)
	}
}
