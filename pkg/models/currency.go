package models

import "time"

// RateType classifies a quoted unit.
type RateType string

const (
	RateFiat   RateType = "fiat"
	RateCrypto RateType = "crypto"
)

// CurrencyRate is the price of one unit of Code expressed in the pivot currency.
type CurrencyRate struct {
	Code             string   `json:"code"`            // e.g., "USD", "VES", "USDT"
	Name             string   `json:"name"`            // e.g., "Dólar (BCV)"
	Value            float64  `json:"value"`           // pivot units per 1 Code
	Type             RateType `json:"type"`
	ChangePercent    *float64 `json:"change_percent"`  // nil when upstream has no period change
	BuyValue         *float64 `json:"buy_value,omitempty"`
	SellValue        *float64 `json:"sell_value,omitempty"`
	SpreadPercentage *float64 `json:"spread_percentage,omitempty"` // upstream-supplied, sign preserved
	IconName         string   `json:"icon_name,omitempty"`
	LastUpdated      string   `json:"last_updated,omitempty"` // ISO 8601
}

// SnapshotMode tells where a rate snapshot came from.
type SnapshotMode string

const (
	ModeLive      SnapshotMode = "live"      // primary rates API
	ModeSecondary SnapshotMode = "secondary" // BCV official page
	ModeFallback  SnapshotMode = "fallback"  // built-in rate set
)

// RateSnapshot is one full set of rates as returned by the rate repository.
type RateSnapshot struct {
	Rates       []CurrencyRate `json:"rates"`
	Source      string         `json:"source"`
	PublishedAt string         `json:"published_at,omitempty"`
	FetchedAt   time.Time      `json:"fetched_at"`
	Mode        SnapshotMode   `json:"mode"`
	Stale       bool           `json:"stale,omitempty"` // live data served from an expired cache entry
	Err         error          `json:"-"` // the failure that caused a degraded mode
}

// Degraded reports whether the snapshot was not served by the primary API.
func (s RateSnapshot) Degraded() bool {
	return s.Mode != ModeLive
}

// Find returns the rate with the given code.
func (s RateSnapshot) Find(code string) (CurrencyRate, bool) {
	return FindRate(s.Rates, code)
}

// FindRate looks up a rate by code in a slice.
func FindRate(rates []CurrencyRate, code string) (CurrencyRate, bool) {
	for _, r := range rates {
		if r.Code == code {
			return r, true
		}
	}
	return CurrencyRate{}, false
}

// CloneRates returns a copy of rates that callers may keep.
func CloneRates(rates []CurrencyRate) []CurrencyRate {
	if rates == nil {
		return nil
	}
	out := make([]CurrencyRate, len(rates))
	copy(out, rates)
	return out
}
