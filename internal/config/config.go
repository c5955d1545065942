// Package config handles configuration loading for tasas.
// It supports YAML config files, a .env file and environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TASAS_API_BASE_URL.
const EnvPrefix = "TASAS"

// Config represents the complete application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Cache   CacheConfig   `mapstructure:"cache"   yaml:"cache"`
	Rates   RatesConfig   `mapstructure:"rates"   yaml:"rates"`
	Stocks  StocksConfig  `mapstructure:"stocks"  yaml:"stocks"`
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// APIConfig holds the upstream rates/market API settings.
type APIConfig struct {
	BaseURL      string  `mapstructure:"base_url"       yaml:"base_url"`
	APIKey       string  `mapstructure:"api_key"        yaml:"api_key"`
	TimeoutSec   int     `mapstructure:"timeout_sec"    yaml:"timeout_sec"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"` // 0 disables limiting
}

// Timeout returns the upstream request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CacheConfig selects and configures the response cache store.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"        yaml:"backend"` // "memory", "file", "redis"
	TTLSec        int    `mapstructure:"ttl_sec"        yaml:"ttl_sec"`
	FilePath      string `mapstructure:"file_path"      yaml:"file_path"`
	RedisAddr     string `mapstructure:"redis_addr"     yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"       yaml:"redis_db"`
}

// TTL returns the default cache freshness window.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// RatesConfig holds rate repository settings.
type RatesConfig struct {
	Pivot        string `mapstructure:"pivot"         yaml:"pivot"         json:"pivot"`
	SecondaryURL string `mapstructure:"secondary_url" yaml:"secondary_url" json:"secondary_url"` // empty disables the BCV source
}

// StocksConfig holds stock repository settings.
type StocksConfig struct {
	PageSize         int    `mapstructure:"page_size"          yaml:"page_size"`
	CacheDurationSec int    `mapstructure:"cache_duration_sec" yaml:"cache_duration_sec"`
	IndexSymbol      string `mapstructure:"index_symbol"       yaml:"index_symbol"`
}

// CacheDuration returns how long a first page stays fresh in memory.
func (c StocksConfig) CacheDuration() time.Duration {
	return time.Duration(c.CacheDurationSec) * time.Second
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"         json:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string `mapstructure:"level"          yaml:"level"`  // "debug", "info", "warn", "error"
	Format        string `mapstructure:"format"         yaml:"format"` // "text" or "json"
	FileEnabled   bool   `mapstructure:"file_enabled"   yaml:"file_enabled"`
	FilePath      string `mapstructure:"file_path"      yaml:"file_path"`
	RotationMB    int    `mapstructure:"rotation_mb"    yaml:"rotation_mb"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tasas/config.yaml (home directory)
//  3. /etc/tasas/config.yaml (system)
//
// A .env file in the working directory is loaded first when present.
// Environment variables override config file values.
// Format: TASAS_<SECTION>_<KEY>, e.g., TASAS_API_API_KEY
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tasas"))
	v.AddConfigPath("/etc/tasas")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Upstream API defaults
	v.SetDefault("api.base_url", "https://api.tasas.com.ve")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.rate_limit_rps", 5.0)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_sec", 300) // 5 minutes
	v.SetDefault("cache.file_path", filepath.Join(homeDir(), ".tasas", "cache.json"))
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	// Rates defaults
	v.SetDefault("rates.pivot", "VES")
	v.SetDefault("rates.secondary_url", "https://www.bcv.org.ve/")

	// Stocks defaults
	v.SetDefault("stocks.page_size", 20)
	v.SetDefault("stocks.cache_duration_sec", 120) // 2 minutes
	v.SetDefault("stocks.index_symbol", "IBC")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file_enabled", false)
	v.SetDefault("logging.file_path", filepath.Join(homeDir(), ".tasas", "logs", "tasas.log"))
	v.SetDefault("logging.rotation_mb", 50)
	v.SetDefault("logging.retention_days", 7)
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("TASAS_API_API_KEY"); key != "" {
		cfg.API.APIKey = key
	}
	if pw := os.Getenv("TASAS_CACHE_REDIS_PASSWORD"); pw != "" {
		cfg.Cache.RedisPassword = pw
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("cache.backend: unknown backend %q (want memory, file or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend == "file" && c.Cache.FilePath == "" {
		return errors.New("cache.file_path is required for the file backend")
	}
	if c.Stocks.PageSize <= 0 || c.Stocks.PageSize > 500 {
		return fmt.Errorf("stocks.page_size: %d out of range 1..500", c.Stocks.PageSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Rates.Pivot) == "" {
		return errors.New("rates.pivot must not be empty")
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
