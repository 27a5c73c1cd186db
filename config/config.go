package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scraper configuration.
type Config struct {
	Websites         []string      `yaml:"websites"`
	Products         [][]string    `yaml:"products"`
	SearchURL        string        `yaml:"search_url"`
	Timeout          time.Duration `yaml:"timeout"`
	CacheSize        int           `yaml:"cache_size"`
	OutputFile       string        `yaml:"output_file"`
	OutputFormat     string        `yaml:"output_format"` // json, csv, or dual
	UserAgent        string        `yaml:"user_agent"`
	Verbose          bool          `yaml:"verbose"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
}

// DefaultConfig returns the demo product list against wollplatz.de.
func DefaultConfig() *Config {
	return &Config{
		Websites: []string{"https://www.wollplatz.de/"},
		Products: [][]string{
			{"DMC", "Natura XL"},
			{"Drops", "Safran"},
			{"Drops", "Baby Merino Mix"},
			{"Hahn", "Alpacca Speciale"},
			{"Stylecraft", "Special double knit"},
		},
		SearchURL:        "https://dynamic.sooqr.com/suggest/script/",
		Timeout:          15 * time.Second,
		CacheSize:        64,
		OutputFile:       "output/wools.json",
		OutputFormat:     "json",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		MetricsAddr:      "",
		RespectRobotsTxt: false,
	}
}

// LoadFile overlays the YAML document at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.Websites) == 0 {
		return fmt.Errorf("at least one website is required")
	}
	for _, site := range c.Websites {
		if strings.TrimSpace(site) == "" {
			return fmt.Errorf("website URL cannot be empty")
		}
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	if c.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SearchURL)
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvList splits a comma separated variable, dropping empty items.
func EnvList(key string) ([]string, bool) {
	value, ok := EnvString(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, len(out) > 0
}
