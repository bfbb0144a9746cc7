package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/seckatie/arkive/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for every arkive command.
type Config struct {
	DBPath          string        `yaml:"db_path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)

	FeedBuffer  int    `yaml:"feed_buffer"`  // per-subscriber queue length
	RecentLimit int    `yaml:"recent_limit"` // cap for the "recent" filter
	FaviconURL  string `yaml:"favicon_url"`  // template with one %s for the domain

	RateLimit float64 `yaml:"rate_limit"` // requests per second per owner, 0 disables
	RateBurst int     `yaml:"rate_burst"`

	// TokensFile maps API bearer tokens to identities.
	TokensFile string `yaml:"tokens_file"`

	// Redis relay; empty address keeps the feed in-process.
	RedisAddr     string `yaml:"redis_addr"`
	RedisUser     string `yaml:"redis_username"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:          "arkive.db",
		Host:            "localhost",
		Port:            8080,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
		PrettyLog:       true,
		FeedBuffer:      64,
		RecentLimit:     20,
		FaviconURL:      "https://www.google.com/s2/favicons?domain=%s&sz=128",
		RateLimit:       20,
		RateBurst:       40,
		RedisChannel:    "arkive:changes",
	}
}

// Load builds the configuration from defaults, a .env file in the working
// directory, an optional YAML file and ARKIVE_* environment variables, in
// that order of precedence.
func Load(path string) (*Config, error) {
	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.DBPath = getenv("ARKIVE_DB", c.DBPath)
	c.Host = getenv("ARKIVE_HOST", c.Host)
	c.LogLevel = strings.ToLower(getenv("ARKIVE_LOG_LEVEL", c.LogLevel))
	c.FaviconURL = getenv("ARKIVE_FAVICON_URL", c.FaviconURL)
	c.TokensFile = getenv("ARKIVE_TOKENS_FILE", c.TokensFile)
	c.RedisAddr = getenv("ARKIVE_REDIS_ADDR", c.RedisAddr)
	c.RedisUser = getenv("ARKIVE_REDIS_USERNAME", c.RedisUser)
	c.RedisPassword = getenv("ARKIVE_REDIS_PASSWORD", c.RedisPassword)
	c.RedisChannel = getenv("ARKIVE_REDIS_CHANNEL", c.RedisChannel)

	var err error
	if c.Port, err = getenvInt("ARKIVE_PORT", c.Port); err != nil {
		return err
	}
	if c.FeedBuffer, err = getenvInt("ARKIVE_FEED_BUFFER", c.FeedBuffer); err != nil {
		return err
	}
	if c.RecentLimit, err = getenvInt("ARKIVE_RECENT_LIMIT", c.RecentLimit); err != nil {
		return err
	}
	if c.RateBurst, err = getenvInt("ARKIVE_RATE_BURST", c.RateBurst); err != nil {
		return err
	}
	if c.RedisDB, err = getenvInt("ARKIVE_REDIS_DB", c.RedisDB); err != nil {
		return err
	}
	if c.PrettyLog, err = getenvBool("ARKIVE_PRETTY_LOG", c.PrettyLog); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = getenvDuration("ARKIVE_SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("ARKIVE_RATE_LIMIT"); ok {
		if c.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid ARKIVE_RATE_LIMIT %q: %w", v, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.FeedBuffer <= 0 {
		return fmt.Errorf("feed buffer must be positive, got %d", c.FeedBuffer)
	}
	if c.RecentLimit <= 0 {
		return fmt.Errorf("recent limit must be positive, got %d", c.RecentLimit)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if strings.Count(c.FaviconURL, "%s") != 1 {
		return fmt.Errorf("favicon url must contain exactly one %%s")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
