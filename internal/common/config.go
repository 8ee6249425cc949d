package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the crawlindex daemon configuration.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig    `toml:"server"`       // unused placeholder, reserved for a future RPC surface
	Storage     StorageConfig   `toml:"storage"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Search      SearchConfig    `toml:"search"`
	Logging     LoggingConfig   `toml:"logging"`
	User        UserConfig      `toml:"user"`
}

// UserConfig names the acting user this daemon indexes on behalf of,
// standing in for the UserRegistry consumed interface (spec.md §6.1) until
// the browser shell supplies one over a real session.
type UserConfig struct {
	Origin string `toml:"origin"` // e.g. "hyper://<key>"
}

// ServerConfig is carried for forward compatibility; crawlindex exposes no
// network listener of its own.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig controls the sqlite-backed index store.
type StorageConfig struct {
	Path           string        `toml:"path"`             // database file path
	ResetOnStartup bool          `toml:"reset_on_startup"` // delete database on startup for clean test runs
	BusyTimeout    time.Duration `toml:"busy_timeout"`     // SQLITE_BUSY retry window
	CacheSizeKB    int           `toml:"cache_size_kb"`    // sqlite page cache size in KB (negative pragma value)
}

// CrawlerConfig controls the Crawl Coordinator and Ingester Framework.
type CrawlerConfig struct {
	DebounceInterval   time.Duration `toml:"debounce_interval"`    // trailing-edge watch debounce (spec default 5s)
	DatasetConcurrency int           `toml:"dataset_concurrency"`  // not read by any package; a crawl runs every dataset ingester at once
	ArchiveReadTimeout time.Duration `toml:"archive_read_timeout"` // not read by any package; archive reads have no per-file timeout
}

// SchedulerConfig controls the Crawl Scheduler's periodic tick.
type SchedulerConfig struct {
	TickCron       string `toml:"tick_cron"`        // robfig/cron expression, default "@every 5s"
	TargetsPerTick int    `toml:"targets_per_tick"` // N candidates crawled per tick (spec default 10)
}

// SearchConfig controls the Search & Query Surface.
type SearchConfig struct {
	DefaultLimit int `toml:"default_limit"` // not read by any package; list has no default limit, federated search defaults to 20
	SnippetWidth int `toml:"snippet_width"` // not read by any package; FTS snippets use a fixed 24-token width
}

// LoggingConfig mirrors the teacher's arbor-backed logging setup.
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05.000"
	FilePath   string   `toml:"file_path"`   // log file path when "file" is in Output
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Path:        "./data/crawlindex.db",
			BusyTimeout: 5 * time.Second,
			CacheSizeKB: 8192,
		},
		Crawler: CrawlerConfig{
			DebounceInterval:   5 * time.Second,
			DatasetConcurrency: 4,
			ArchiveReadTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickCron:       "@every 5s",
			TargetsPerTick: 10,
		},
		Search: SearchConfig{
			DefaultLimit: 50,
			SnippetWidth: 8,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
			FilePath:   "./logs/crawlindex.log",
		},
		User: UserConfig{},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones: default -> file1 -> file2 -> ... -> env -> CLI.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies CRAWLINDEX_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CRAWLINDEX_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CRAWLINDEX_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CRAWLINDEX_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("CRAWLINDEX_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if reset := os.Getenv("CRAWLINDEX_STORAGE_RESET_ON_STARTUP"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.ResetOnStartup = r
		}
	}

	if debounce := os.Getenv("CRAWLINDEX_CRAWLER_DEBOUNCE_INTERVAL"); debounce != "" {
		if d, err := time.ParseDuration(debounce); err == nil {
			config.Crawler.DebounceInterval = d
		}
	}
	if concurrency := os.Getenv("CRAWLINDEX_CRAWLER_DATASET_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Crawler.DatasetConcurrency = c
		}
	}

	if tickCron := os.Getenv("CRAWLINDEX_SCHEDULER_TICK_CRON"); tickCron != "" {
		config.Scheduler.TickCron = tickCron
	}
	if targets := os.Getenv("CRAWLINDEX_SCHEDULER_TARGETS_PER_TICK"); targets != "" {
		if t, err := strconv.Atoi(targets); err == nil {
			config.Scheduler.TargetsPerTick = t
		}
	}

	if origin := os.Getenv("CRAWLINDEX_USER_ORIGIN"); origin != "" {
		config.User.Origin = origin
	}

	if level := os.Getenv("CRAWLINDEX_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CRAWLINDEX_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are
// allowed. Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

// DeepCloneConfig creates a deep copy of the Config struct, used to prevent
// mutation of a shared configuration instance.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	return &clone
}
