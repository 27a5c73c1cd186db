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
			name: "no websites",
			mutate: func(cfg *Config) {
				cfg.Websites = nil
			},
			wantErr: "website",
		},
		{
			name: "blank website",
			mutate: func(cfg *Config) {
				cfg.Websites = []string{" "}
			},
			wantErr: "website",
		},
		{
			name: "no products",
			mutate: func(cfg *Config) {
				cfg.Products = nil
			},
			wantErr: "product",
		},
		{
			name: "empty search url",
			mutate: func(cfg *Config) {
				cfg.SearchURL = ""
			},
			wantErr: "search URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.SearchURL = "http://"
			},
			wantErr: "search URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative cache size",
			mutate: func(cfg *Config) {
				cfg.CacheSize = -1
			},
			wantErr: "cache size",
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

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "woolscraper.yaml")
	content := `websites:
  - https://www.wollplatz.de/
  - https://www.example.org/
products:
  - [DMC, Natura XL]
output_format: dual
cache_size: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if len(cfg.Websites) != 2 {
		t.Fatalf("websites = %v, want 2 entries", cfg.Websites)
	}
	if len(cfg.Products) != 1 || cfg.Products[0][1] != "Natura XL" {
		t.Fatalf("products = %v", cfg.Products)
	}
	if cfg.OutputFormat != "dual" || cfg.CacheSize != 0 {
		t.Fatalf("format=%q cache=%d", cfg.OutputFormat, cfg.CacheSize)
	}
	if cfg.SearchURL != DefaultConfig().SearchURL {
		t.Fatalf("search URL should keep its default, got %q", cfg.SearchURL)
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("websites: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := DefaultConfig().LoadFile(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("WOOLSCRAPER_TEST_INT", "42")
	t.Setenv("WOOLSCRAPER_TEST_BAD", "forty")
	t.Setenv("WOOLSCRAPER_TEST_LIST", "https://a.example/, ,https://b.example/")

	if n, ok, err := EnvInt("WOOLSCRAPER_TEST_INT"); err != nil || !ok || n != 42 {
		t.Fatalf("EnvInt = %d, %v, %v", n, ok, err)
	}
	if _, _, err := EnvInt("WOOLSCRAPER_TEST_BAD"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, ok, err := EnvInt("WOOLSCRAPER_TEST_UNSET"); ok || err != nil {
		t.Fatalf("unset variable should be absent, got ok=%v err=%v", ok, err)
	}
	list, ok := EnvList("WOOLSCRAPER_TEST_LIST")
	if !ok || len(list) != 2 || list[1] != "https://b.example/" {
		t.Fatalf("EnvList = %v, %v", list, ok)
	}
}
