package rates

import (
	"time"

	"github.com/seenimoa/tasas/pkg/models"
)

// FallbackSource names the built-in rate set.
const FallbackSource = "fallback"

// fallbackRates is served when neither the rates API nor the secondary
// source answers. Values are pivot units per 1 unit of the code.
var fallbackRates = []models.CurrencyRate{
	{Code: "USD", Name: "Dólar (BCV)", Value: 36.5, Type: models.RateFiat, IconName: "usd"},
	{Code: "EUR", Name: "Euro (BCV)", Value: 39.8, Type: models.RateFiat, IconName: "eur"},
	{Code: "USDT", Name: "Tether (P2P)", Value: 37.0, Type: models.RateCrypto, IconName: "usdt"},
}

// FallbackSnapshot returns the built-in degraded snapshot. err is the
// failure that made it necessary.
func FallbackSnapshot(pivot string, now time.Time, err error) models.RateSnapshot {
	return models.RateSnapshot{
		Rates:     withPivot(models.CloneRates(fallbackRates), pivot, ""),
		Source:    FallbackSource,
		FetchedAt: now,
		Mode:      models.ModeFallback,
		Err:       err,
	}
}
