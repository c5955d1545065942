package rates

import (
	"fmt"
	"strings"

	"github.com/seenimoa/tasas/pkg/models"
	"github.com/seenimoa/tasas/pkg/utils"
)

// ratesResponse is the upstream GET /api/rates payload. Numeric fields are
// left untyped because the API sends both numbers and comma-decimal strings.
type ratesResponse struct {
	Source          string         `json:"source"`
	Rates           []upstreamRate `json:"rates"`
	PublicationDate string         `json:"publicationDate"`
	Timestamp       any            `json:"timestamp"`
}

type upstreamRate struct {
	Currency string `json:"currency"`
	Rate     any    `json:"rate"`
	Name     string `json:"name"`
	Change   any    `json:"change"`
	Buy      any    `json:"buy"`
	Sell     any    `json:"sell"`
	Spread   any    `json:"spread"`
}

var cryptoCodes = map[string]bool{
	"USDT": true,
	"BTC":  true,
	"ETH":  true,
}

var displayNames = map[string]string{
	"VES":  "Bolívar",
	"USD":  "Dólar",
	"EUR":  "Euro",
	"CNY":  "Yuan",
	"TRY":  "Lira turca",
	"RUB":  "Rublo",
	"USDT": "Tether",
	"BTC":  "Bitcoin",
	"ETH":  "Ether",
}

// rateType classifies a code; anything not known as crypto is fiat.
func rateType(code string) models.RateType {
	if cryptoCodes[code] {
		return models.RateCrypto
	}
	return models.RateFiat
}

// displayName qualifies a currency name with its source, e.g. "Euro (BCV)".
func displayName(code, name, source string) string {
	if name == "" {
		name = displayNames[code]
	}
	if name == "" {
		name = code
	}
	if source == "" || strings.Contains(name, "(") {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.ToUpper(source))
}

// pivotRate is the synthetic entry every snapshot starts with.
func pivotRate(pivot, updated string) models.CurrencyRate {
	return models.CurrencyRate{
		Code:        pivot,
		Name:        displayName(pivot, "", ""),
		Value:       1,
		Type:        models.RateFiat,
		IconName:    strings.ToLower(pivot),
		LastUpdated: updated,
	}
}

// mapRates normalizes an upstream payload. Entries without a code, with a
// non-positive value, duplicating an earlier code, or naming the pivot are
// dropped; the pivot is re-inserted at index 0.
func mapRates(resp ratesResponse, pivot string) []models.CurrencyRate {
	updated := resp.PublicationDate
	if updated == "" && resp.Timestamp != nil {
		updated = fmt.Sprint(resp.Timestamp)
	}

	out := make([]models.CurrencyRate, 0, len(resp.Rates)+1)
	out = append(out, pivotRate(pivot, updated))
	seen := map[string]bool{pivot: true}

	for _, r := range resp.Rates {
		code := utils.NormalizeCode(r.Currency)
		if code == "" || seen[code] {
			continue
		}
		value := utils.ParseNumber(r.Rate)
		if value <= 0 {
			continue
		}
		seen[code] = true
		out = append(out, models.CurrencyRate{
			Code:             code,
			Name:             displayName(code, strings.TrimSpace(r.Name), resp.Source),
			Value:            value,
			Type:             rateType(code),
			ChangePercent:    utils.ParseNumberPtr(r.Change),
			BuyValue:         utils.ParseNumberPtr(r.Buy),
			SellValue:        utils.ParseNumberPtr(r.Sell),
			SpreadPercentage: utils.ParseNumberPtr(r.Spread),
			IconName:         strings.ToLower(code),
			LastUpdated:      updated,
		})
	}
	return out
}

// withPivot prepends the pivot to rates produced by a secondary source.
func withPivot(rates []models.CurrencyRate, pivot, updated string) []models.CurrencyRate {
	out := make([]models.CurrencyRate, 0, len(rates)+1)
	out = append(out, pivotRate(pivot, updated))
	for _, r := range rates {
		if r.Code == pivot || r.Value <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
