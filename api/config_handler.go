package api

import (
	"net/http"

	"github.com/seenimoa/tasas/internal/config"
)

// ConfigResponse is the redacted runtime configuration.
type ConfigResponse struct {
	API    apiView             `json:"api"`
	Cache  cacheView           `json:"cache"`
	Rates  config.RatesConfig  `json:"rates"`
	Stocks stocksView          `json:"stocks"`
	Server config.ServerConfig `json:"server"`
	Keys   []config.KeyStatus  `json:"keys"`
}

type apiView struct {
	BaseURL      string  `json:"base_url"`
	TimeoutSec   int     `json:"timeout_sec"`
	RateLimitRPS float64 `json:"rate_limit_rps"`
}

type cacheView struct {
	Backend   string `json:"backend"`
	TTLSec    int    `json:"ttl_sec"`
	FilePath  string `json:"file_path,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db"`
}

type stocksView struct {
	PageSize         int    `json:"page_size"`
	CacheDurationSec int    `json:"cache_duration_sec"`
	IndexSymbol      string `json:"index_symbol"`
}

// redact builds the view of cfg that is safe to return over HTTP. Secrets
// only appear masked inside Keys.
func redact(cfg *config.Config) ConfigResponse {
	resp := ConfigResponse{
		API: apiView{
			BaseURL:      cfg.API.BaseURL,
			TimeoutSec:   cfg.API.TimeoutSec,
			RateLimitRPS: cfg.API.RateLimitRPS,
		},
		Cache: cacheView{
			Backend: cfg.Cache.Backend,
			TTLSec:  cfg.Cache.TTLSec,
			RedisDB: cfg.Cache.RedisDB,
		},
		Rates: cfg.Rates,
		Stocks: stocksView{
			PageSize:         cfg.Stocks.PageSize,
			CacheDurationSec: cfg.Stocks.CacheDurationSec,
			IndexSymbol:      cfg.Stocks.IndexSymbol,
		},
		Server: cfg.Server,
		Keys:   config.CheckKeys(cfg),
	}
	switch cfg.Cache.Backend {
	case "file":
		resp.Cache.FilePath = cfg.Cache.FilePath
	case "redis":
		resp.Cache.RedisAddr = cfg.Cache.RedisAddr
	}
	return resp
}

// handleGetConfig returns the redacted configuration and secret status.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration not loaded")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: redact(s.cfg)})
}
