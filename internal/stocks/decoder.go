package stocks

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/seenimoa/tasas/pkg/models"
	"github.com/seenimoa/tasas/pkg/utils"
)

// Shape identifies which known layout a market payload used.
type Shape int

const (
	ShapeUnknown Shape = iota // nothing recognizable; decoded as an empty page
	ShapeCurrent              // {data, pagination?, status?, indices?, stats?}
	ShapeLegacy               // {stocks, marketStatus?}
)

func (s Shape) String() string {
	switch s {
	case ShapeCurrent:
		return "current"
	case ShapeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// marketPage is one decoded market response.
type marketPage struct {
	Shape      Shape
	Stocks     []models.StockData
	Keys       []string // de-duplication key per stock, parallel to Stocks
	TotalPages int      // 0 when the payload carries no pagination
	MarketOpen *bool    // nil when the payload says nothing about market state
	UpdatedAt  string
	Indices    []models.MarketIndex
	Stats      *models.MarketStats
}

// decodeMarket tries the known shapes in priority order.
func decodeMarket(body []byte) marketPage {
	root := gjson.ParseBytes(body)

	if data := root.Get("data"); data.IsArray() {
		p := marketPage{Shape: ShapeCurrent}
		p.Stocks, p.Keys = decodeStocks(data)
		if tp := root.Get("pagination.totalPages"); tp.Exists() {
			p.TotalPages = int(utils.ParseNumber(tp.Value()))
		}
		if state := root.Get("status.state"); state.Exists() {
			open := strings.EqualFold(strings.TrimSpace(state.String()), "ABIERTO")
			p.MarketOpen = &open
		}
		p.UpdatedAt = root.Get("status.lastUpdate").String()
		p.Indices = decodeIndices(root.Get("indices"))
		if stats := root.Get("stats"); stats.IsObject() {
			s := decodeStats(stats)
			p.Stats = &s
		}
		return p
	}

	if legacy := root.Get("stocks"); legacy.IsArray() {
		p := marketPage{Shape: ShapeLegacy}
		p.Stocks, p.Keys = decodeStocks(legacy)
		if isOpen := root.Get("marketStatus.isOpen"); isOpen.IsBool() {
			open := isOpen.Bool()
			p.MarketOpen = &open
		}
		return p
	}

	return marketPage{Shape: ShapeUnknown}
}

func decodeStocks(arr gjson.Result) ([]models.StockData, []string) {
	items := arr.Array()
	stocks := make([]models.StockData, 0, len(items))
	keys := make([]string, 0, len(items))
	for _, it := range items {
		key := stockKey(it)
		if key == "" {
			continue
		}
		price := num(it, "price", "lastPrice", "close")
		if price < 0 {
			price = 0
		}
		amount := num(it, "volumeAmount", "amount", "effectiveAmount")
		category := strings.TrimSpace(firstString(it, "category", "sector"))
		if category == "" {
			category = models.DefaultCategory
		}
		stocks = append(stocks, models.StockData{
			Symbol:        strings.TrimSpace(it.Get("symbol").String()),
			Name:          strings.TrimSpace(firstString(it, "name", "description")),
			Price:         price,
			ChangePercent: num(it, "changePercent", "variation", "percentChange"),
			ChangeAmount:  num(it, "changeAmount", "change"),
			VolumeShares:  num(it, "volumeShares", "volume", "shares"),
			VolumeAmount:  amount,
			Volume:        utils.FormatCompactVolume(amount),
			Category:      category,
		})
		keys = append(keys, key)
	}
	return stocks, keys
}

// stockKey is the symbol, or the id when the symbol is missing.
func stockKey(it gjson.Result) string {
	if s := strings.TrimSpace(it.Get("symbol").String()); s != "" {
		return s
	}
	if id := it.Get("id"); id.Exists() && strings.TrimSpace(id.String()) != "" {
		return "id:" + strings.TrimSpace(id.String())
	}
	return ""
}

func decodeIndices(arr gjson.Result) []models.MarketIndex {
	if !arr.IsArray() {
		return nil
	}
	var out []models.MarketIndex
	for _, it := range arr.Array() {
		sym := strings.TrimSpace(it.Get("symbol").String())
		if sym == "" {
			continue
		}
		out = append(out, models.MarketIndex{
			Symbol:        sym,
			Name:          strings.TrimSpace(it.Get("name").String()),
			Value:         num(it, "value", "price", "close"),
			ChangePercent: num(it, "changePercent", "variation"),
			ChangeAmount:  num(it, "changeAmount", "change"),
		})
	}
	return out
}

func decodeStats(obj gjson.Result) models.MarketStats {
	return models.MarketStats{
		TotalVolume: num(obj, "totalVolume", "volume"),
		TotalAmount: num(obj, "totalAmount", "amount"),
		Trades:      int(num(obj, "trades", "totalTrades")),
		Advancers:   int(num(obj, "advancers", "up")),
		Decliners:   int(num(obj, "decliners", "down")),
		Unchanged:   int(num(obj, "unchanged", "stable")),
	}
}

// num returns the first present field among paths, normalized.
func num(it gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if r := it.Get(p); r.Exists() {
			return utils.ParseNumber(r.Value())
		}
	}
	return 0
}

func firstString(it gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := it.Get(p); r.Exists() && r.Type == gjson.String {
			return r.Str
		}
	}
	return ""
}
