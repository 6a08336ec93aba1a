package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Browser   BrowserConfig
	Challenge ChallengeConfig
	LLM       LLMConfig
	Analysis  AnalysisConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Logging   LoggingConfig
	DataDir   string

	// set when UNATTENDED_MODE was given explicitly
	unattendedPinned bool
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	Limit          int
	AdapterTimeout time.Duration
	Concurrency    int
	RateLimitMin   time.Duration
	RateLimitMax   time.Duration
	Sources        []string
	ShopeeRegion   string
	Diagnostics    bool
}

type BrowserConfig struct {
	Headless bool
	Type     string
	Timeout  time.Duration
	Proxy    string
}

type ChallengeConfig struct {
	Unattended   bool
	PollInterval time.Duration
	MaxPolls     int
}

type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

type AnalysisConfig struct {
	ExchangeRate      float64
	MarginThreshold   float64
	DigestPerCategory int
}

// DatabaseConfig is optional. An empty Host and URL keep runs on disk.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

// RedisConfig is optional. An empty Addr disables the outbox relay.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type QueueConfig struct {
	MaxSize int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// a missing .env is fine; the process environment still applies
	_ = godotenv.Load()

	headless := getBoolOrDefault("HEADLESS_MODE", true)
	dataDir := getEnvOrDefault("DATA_DIR", "data")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			Limit:          getIntOrDefault("SCRAPER_LIMIT", 5),
			AdapterTimeout: getDurationOrDefault("SCRAPER_ADAPTER_TIMEOUT", 120*time.Second),
			Concurrency:    getIntOrDefault("SCRAPER_CONCURRENCY", 4),
			RateLimitMin:   getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:   getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 5*time.Second),
			Sources:        getStringSliceOrDefault("SCRAPER_SOURCES", nil),
			ShopeeRegion:   getEnvOrDefault("SHOPEE_REGION", "my"),
			Diagnostics:    getBoolOrDefault("DIAGNOSTICS_ENABLED", true),
		},
		Browser: BrowserConfig{
			Headless: headless,
			Type:     getEnvOrDefault("BROWSER_TYPE", "chromium"),
			Timeout:  getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			Proxy:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Challenge: ChallengeConfig{
			Unattended:   getBoolOrDefault("UNATTENDED_MODE", headless),
			PollInterval: getDurationOrDefault("CHALLENGE_POLL_INTERVAL", time.Second),
			MaxPolls:     getIntOrDefault("CHALLENGE_MAX_POLLS", 60),
		},
		LLM: LLMConfig{
			APIKey:    getEnvOrDefault("LLM_API_KEY", ""),
			BaseURL:   getEnvOrDefault("LLM_BASE_URL", ""),
			Model:     getEnvOrDefault("LLM_MODEL", "claude-sonnet-4-5"),
			Timeout:   getDurationOrDefault("LLM_TIMEOUT", 60*time.Second),
			MaxTokens: getIntOrDefault("LLM_MAX_TOKENS", 2048),
		},
		Analysis: AnalysisConfig{
			ExchangeRate:      getFloatOrDefault("EXCHANGE_RATE_USD_CNY", 7.2),
			MarginThreshold:   getFloatOrDefault("MARGIN_THRESHOLD", 0.4),
			DigestPerCategory: getIntOrDefault("DIGEST_PER_CATEGORY", 5),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "market_scout"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", ""),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Queue: QueueConfig{
			MaxSize: getIntOrDefault("QUEUE_MAX_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		DataDir:          dataDir,
		unattendedPinned: os.Getenv("UNATTENDED_MODE") != "",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Scraper.Limit < 1 {
		return fmt.Errorf("SCRAPER_LIMIT must be at least 1")
	}

	if c.Scraper.AdapterTimeout <= 0 {
		return fmt.Errorf("SCRAPER_ADAPTER_TIMEOUT must be positive")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Analysis.ExchangeRate <= 0 {
		return fmt.Errorf("EXCHANGE_RATE_USD_CNY must be positive")
	}

	if c.Analysis.MarginThreshold < 0 || c.Analysis.MarginThreshold >= 1 {
		return fmt.Errorf("MARGIN_THRESHOLD must be in [0, 1)")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be at least 1")
	}

	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}

	return nil
}

// ApplyHeadless overrides the browser mode after Load. Challenge handling
// follows the new mode unless UNATTENDED_MODE pinned it.
func (c *Config) ApplyHeadless(headless bool) {
	c.Browser.Headless = headless
	if !c.unattendedPinned {
		c.Challenge.Unattended = headless
	}
}

func (c *Config) ReportsDir() string {
	return filepath.Join(c.DataDir, "reports")
}

func (c *Config) DebugDir() string {
	return filepath.Join(c.DataDir, "debug")
}

func (c *Config) RunsFile() string {
	return filepath.Join(c.DataDir, "runs.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
