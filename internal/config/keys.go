package config

import "os"

// KeySource represents where a secret comes from.
type KeySource string

const (
	KeySourceEnv    KeySource = "env"
	KeySourceConfig KeySource = "config"
	KeySourceNone   KeySource = "none"
)

// KeyStatus represents the status of a secret.
type KeyStatus struct {
	Name   string    `json:"name"`
	Source KeySource `json:"source"`
	IsSet  bool      `json:"is_set"`
	Masked string    `json:"masked,omitempty"` // e.g., "tk_...abc"
}

// CheckKeys returns the status of every secret the service uses.
func CheckKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("Rates API Key", cfg.API.APIKey, "TASAS_API_API_KEY"),
		checkKey("Redis Password", cfg.Cache.RedisPassword, "TASAS_CACHE_REDIS_PASSWORD"),
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{Name: name, IsSet: value != ""}
	if value == "" {
		status.Source = KeySourceNone
		return status
	}
	if os.Getenv(envVar) != "" {
		status.Source = KeySourceEnv
	} else {
		status.Source = KeySourceConfig
	}
	status.Masked = MaskKey(value)
	return status
}

// MaskKey masks a secret for display, showing only first 3 and last 3 chars.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
