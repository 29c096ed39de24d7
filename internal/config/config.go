// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

// Default target site.
const (
	DefaultBaseURL      = "https://yeniemlak.az"
	DefaultDirectoryURL = "https://yeniemlak.az/elan/axtar?elan_nov=&emlak=&metro%5B%5D=0&menzil_nov=&mertebe_sayi=&mertebe_sayi2=&mertebe=&mertebe2=&otaq=0&otaq2=0&sahe_m=&sahe_m2=&sahe_s=&sahe_s2=&qiymet=&qiymet2=&sened="
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Export     ExportConfig     `mapstructure:"export"`
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlerConfig governs the target site and the crawl pipeline.
type CrawlerConfig struct {
	DirectoryURL                string        `mapstructure:"directory_url"`
	BaseURL                     string        `mapstructure:"base_url"`
	PageParam                   string        `mapstructure:"page_param"`
	StartPage                   int           `mapstructure:"start_page"`
	EndPage                     int           `mapstructure:"end_page"`
	DefaultTotalPages           int           `mapstructure:"default_total_pages"`
	Concurrency                 int           `mapstructure:"concurrency"`
	RequestDelay                time.Duration `mapstructure:"request_delay"`
	RetryFailedDelay            time.Duration `mapstructure:"retry_failed_delay"`
	DiscoveryCheckpointInterval int           `mapstructure:"discovery_checkpoint_interval"`
	CheckpointInterval          int           `mapstructure:"checkpoint_interval"`
	ProgressInterval            int           `mapstructure:"progress_interval"`
	UserAgent                   string        `mapstructure:"user_agent"`
	AcceptLanguage              string        `mapstructure:"accept_language"`
}

// HTTPConfig configures the page fetcher and its retry behavior.
type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	TimeoutWait        time.Duration `mapstructure:"timeout_wait"`
	ErrorWait          time.Duration `mapstructure:"error_wait"`
	RateLimitBaseWait  time.Duration `mapstructure:"rate_limit_base_wait"`
	MaxRPS             float64       `mapstructure:"max_rps"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// CheckpointConfig locates the durable crawl state.
type CheckpointConfig struct {
	Dir          string `mapstructure:"dir"`
	File         string `mapstructure:"file"`
	ProgressFile string `mapstructure:"progress_file"`
}

// ExportConfig controls the final output files.
type ExportConfig struct {
	Output  string   `mapstructure:"output"`
	Formats []string `mapstructure:"formats"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// PostgresConfig controls the optional record mirror. An empty DSN disables it.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadFrom(NewViper(), path)
}

// NewViper returns a Viper instance with defaults and environment binding
// applied. Callers may bind command-line flags before passing it to LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFrom reads the optional config file into v and decodes the result.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.directory_url", DefaultDirectoryURL)
	v.SetDefault("crawler.base_url", DefaultBaseURL)
	v.SetDefault("crawler.page_param", "page")
	v.SetDefault("crawler.start_page", 1)
	v.SetDefault("crawler.end_page", 0)
	v.SetDefault("crawler.default_total_pages", 1485)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.request_delay", time.Second)
	v.SetDefault("crawler.retry_failed_delay", 2*time.Second)
	v.SetDefault("crawler.discovery_checkpoint_interval", 10)
	v.SetDefault("crawler.checkpoint_interval", 25)
	v.SetDefault("crawler.progress_interval", 10)
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.accept_language", "az,en;q=0.9")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.timeout_wait", 5*time.Second)
	v.SetDefault("http.error_wait", 3*time.Second)
	v.SetDefault("http.rate_limit_base_wait", 10*time.Second)
	v.SetDefault("http.max_rps", 0)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("checkpoint.dir", ".")
	v.SetDefault("checkpoint.file", "checkpoint.json")
	v.SetDefault("checkpoint.progress_file", "listings_progress.json")
	v.SetDefault("export.output", "listings")
	v.SetDefault("export.formats", []string{"csv", "json"})
	v.SetDefault("server.addr", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "listings")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "scraper.log")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.DirectoryURL == "" {
		return fmt.Errorf("crawler.directory_url is required")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if err := c.CrawlerSettings().Validate(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.TimeoutWait < 0 || c.HTTP.ErrorWait < 0 || c.HTTP.RateLimitBaseWait < 0 {
		return fmt.Errorf("http waits must be >= 0")
	}
	if c.HTTP.MaxRPS < 0 {
		return fmt.Errorf("http.max_rps must be >= 0")
	}
	if c.Checkpoint.File == "" || c.Checkpoint.ProgressFile == "" {
		return fmt.Errorf("checkpoint.file and checkpoint.progress_file are required")
	}
	if c.Export.Output == "" {
		return fmt.Errorf("export.output is required")
	}
	for _, f := range c.Export.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "csv", "json":
		default:
			return fmt.Errorf("export.formats: unsupported format %q", f)
		}
	}
	return nil
}

// CrawlerSettings converts the crawler section into orchestrator settings.
func (c Config) CrawlerSettings() crawler.Config {
	return crawler.Config{
		StartPage:                   c.Crawler.StartPage,
		EndPage:                     c.Crawler.EndPage,
		DefaultTotalPages:           c.Crawler.DefaultTotalPages,
		Concurrency:                 c.Crawler.Concurrency,
		RequestDelay:                c.Crawler.RequestDelay,
		RetryFailedDelay:            c.Crawler.RetryFailedDelay,
		DiscoveryCheckpointInterval: c.Crawler.DiscoveryCheckpointInterval,
		CheckpointInterval:          c.Crawler.CheckpointInterval,
		ProgressInterval:            c.Crawler.ProgressInterval,
	}
}

// RetryPolicy converts the HTTP section into the fetch retry policy.
func (c Config) RetryPolicy() crawler.RetryPolicy {
	return crawler.RetryPolicy{
		MaxAttempts:       c.HTTP.MaxAttempts,
		TimeoutWait:       c.HTTP.TimeoutWait,
		ErrorWait:         c.HTTP.ErrorWait,
		RateLimitBaseWait: c.HTTP.RateLimitBaseWait,
	}
}

// StoreConfig locates the checkpoint and progress files.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Dir:            c.Checkpoint.Dir,
		CheckpointFile: c.Checkpoint.File,
		ProgressFile:   c.Checkpoint.ProgressFile,
	}
}
