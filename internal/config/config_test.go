package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var secretEnv = []string{"TASAS_API_API_KEY", "TASAS_CACHE_REDIS_PASSWORD"}

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, e := range secretEnv {
		t.Setenv(e, "")
		os.Unsetenv(e)
	}
}

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	clearSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.BaseURL != "https://api.tasas.com.ve" {
		t.Errorf("API.BaseURL: got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout() != 30*time.Second {
		t.Errorf("API.Timeout: got %v, want 30s", cfg.API.Timeout())
	}
	if cfg.API.RateLimitRPS != 5 {
		t.Errorf("API.RateLimitRPS: got %f, want 5", cfg.API.RateLimitRPS)
	}

	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend: got %q, want %q", cfg.Cache.Backend, "memory")
	}
	if cfg.Cache.TTL() != 5*time.Minute {
		t.Errorf("Cache.TTL: got %v, want 5m", cfg.Cache.TTL())
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("Cache.RedisAddr: got %q", cfg.Cache.RedisAddr)
	}

	if cfg.Rates.Pivot != "VES" {
		t.Errorf("Rates.Pivot: got %q, want VES", cfg.Rates.Pivot)
	}
	if cfg.Stocks.PageSize != 20 {
		t.Errorf("Stocks.PageSize: got %d, want 20", cfg.Stocks.PageSize)
	}
	if cfg.Stocks.CacheDuration() != 2*time.Minute {
		t.Errorf("Stocks.CacheDuration: got %v, want 2m", cfg.Stocks.CacheDuration())
	}
	if cfg.Stocks.IndexSymbol != "IBC" {
		t.Errorf("Stocks.IndexSymbol: got %q", cfg.Stocks.IndexSymbol)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("Server: got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Logging.FileEnabled {
		t.Error("Logging.FileEnabled should default to false")
	}
	if cfg.Logging.RotationMB != 50 || cfg.Logging.RetentionDays != 7 {
		t.Errorf("Logging rotation: got %d MB / %d days", cfg.Logging.RotationMB, cfg.Logging.RetentionDays)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearSecrets(t)
	t.Setenv("TASAS_STOCKS_PAGE_SIZE", "50")
	t.Setenv("TASAS_RATES_PIVOT", "USD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Stocks.PageSize != 50 {
		t.Errorf("Stocks.PageSize: got %d, want 50", cfg.Stocks.PageSize)
	}
	if cfg.Rates.Pivot != "USD" {
		t.Errorf("Rates.Pivot: got %q, want USD", cfg.Rates.Pivot)
	}
}

// ── LoadFromFile ──

func TestLoadFromFile(t *testing.T) {
	clearSecrets(t)
	cfgPath := filepath.Join(t.TempDir(), "test_config.yaml")
	content := []byte(`
api:
  base_url: "https://rates.example.com"
  api_key: "tk_test_1234567890"
  timeout_sec: 10
cache:
  backend: "redis"
  redis_addr: "cache:6379"
  redis_db: 2
stocks:
  page_size: 40
  cache_duration_sec: 60
server:
  port: 9090
  cors_origins: ["https://app.example.com"]
logging:
  level: "debug"
  format: "json"
  file_enabled: true
`)
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.API.BaseURL != "https://rates.example.com" || cfg.API.APIKey != "tk_test_1234567890" {
		t.Errorf("API: got %+v", cfg.API)
	}
	if cfg.API.Timeout() != 10*time.Second {
		t.Errorf("API.Timeout: got %v", cfg.API.Timeout())
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "cache:6379" || cfg.Cache.RedisDB != 2 {
		t.Errorf("Cache: got %+v", cfg.Cache)
	}
	if cfg.Stocks.PageSize != 40 || cfg.Stocks.CacheDuration() != time.Minute {
		t.Errorf("Stocks: got %+v", cfg.Stocks)
	}
	if cfg.Stocks.IndexSymbol != "IBC" {
		t.Errorf("default IndexSymbol lost: %q", cfg.Stocks.IndexSymbol)
	}
	if cfg.Server.Port != 9090 || len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("Server: got %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || !cfg.Logging.FileEnabled {
		t.Errorf("Logging: got %+v", cfg.Logging)
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("LoadFromFile() with nonexistent path should return error")
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(cfgPath, []byte("cache:\n  backend: \"sqlite\"\n"), 0644)

	_, err := LoadFromFile(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("expected cache.backend validation error, got %v", err)
	}
}

// ── Validate ──

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Cache:  CacheConfig{Backend: "memory"},
			Rates:  RatesConfig{Pivot: "VES"},
			Stocks: StocksConfig{PageSize: 20},
			Server: ServerConfig{Port: 8080},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Cache.Backend = "etcd" }},
		{"file without path", func(c *Config) { c.Cache.Backend = "file" }},
		{"page size zero", func(c *Config) { c.Stocks.PageSize = 0 }},
		{"page size too big", func(c *Config) { c.Stocks.PageSize = 501 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"blank pivot", func(c *Config) { c.Rates.Pivot = "  " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

// ── .env ──

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("TASAS_DOTENV_PROBE=from-file\nTASAS_DOTENV_KEEP=from-file\n"), 0644)
	t.Setenv("TASAS_DOTENV_KEEP", "from-env")
	t.Setenv("TASAS_DOTENV_PROBE", "")
	os.Unsetenv("TASAS_DOTENV_PROBE")

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("TASAS_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("TASAS_DOTENV_PROBE = %q", got)
	}
	if got := os.Getenv("TASAS_DOTENV_KEEP"); got != "from-env" {
		t.Errorf(".env overrode existing variable: %q", got)
	}

	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

// ── overrideFromEnv ──

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("TASAS_API_API_KEY", "tk-env-key-123456")
	t.Setenv("TASAS_CACHE_REDIS_PASSWORD", "redis-secret")

	cfg := &Config{}
	overrideFromEnv(cfg)

	if cfg.API.APIKey != "tk-env-key-123456" {
		t.Errorf("APIKey: got %q", cfg.API.APIKey)
	}
	if cfg.Cache.RedisPassword != "redis-secret" {
		t.Errorf("RedisPassword: got %q", cfg.Cache.RedisPassword)
	}
}

func TestOverrideFromEnvNoEnvSet(t *testing.T) {
	clearSecrets(t)

	cfg := &Config{API: APIConfig{APIKey: "from-config"}}
	overrideFromEnv(cfg)

	if cfg.API.APIKey != "from-config" {
		t.Errorf("APIKey should stay as 'from-config' when env is unset, got %q", cfg.API.APIKey)
	}
}

// ── MaskKey ──

func TestMaskKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "***"},
		{"abcd", "***"},
		{"12345678", "***"},
		{"123456789", "123...789"},
		{"tk_abcdef1234567890xyz", "tk_...xyz"},
	}
	for _, tc := range tests {
		if got := MaskKey(tc.input); got != tc.want {
			t.Errorf("MaskKey(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}
}

// ── CheckKeys / checkKey ──

func TestCheckKeysAllEmpty(t *testing.T) {
	clearSecrets(t)

	statuses := CheckKeys(&Config{})
	if len(statuses) != 2 {
		t.Fatalf("CheckKeys: got %d statuses, want 2", len(statuses))
	}
	for _, s := range statuses {
		if s.IsSet || s.Source != KeySourceNone {
			t.Errorf("Key %q: got %+v", s.Name, s)
		}
	}
}

func TestCheckKeysSources(t *testing.T) {
	clearSecrets(t)
	t.Setenv("TASAS_CACHE_REDIS_PASSWORD", "redis-password-from-env")

	cfg := &Config{
		API:   APIConfig{APIKey: "tk-config-very-long-value"},
		Cache: CacheConfig{RedisPassword: "redis-password-from-env"},
	}
	statuses := CheckKeys(cfg)

	if statuses[0].Source != KeySourceConfig || statuses[0].Masked != "tk-...lue" {
		t.Errorf("API key status: %+v", statuses[0])
	}
	if statuses[1].Source != KeySourceEnv {
		t.Errorf("Redis password status: %+v", statuses[1])
	}
}

func TestHomeDirReturnsNonEmpty(t *testing.T) {
	if homeDir() == "" {
		t.Error("homeDir() should not return empty string")
	}
}
