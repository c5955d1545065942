// Package models defines the core data structures shared by the rate and
// stock repositories, the conversion engine and the API.
package models

// DefaultCategory is used when upstream does not classify a stock.
const DefaultCategory = "Otros"

// StockData is one traded security snapshot from the BVC market feed.
type StockData struct {
	Symbol        string  `json:"symbol"` // e.g., "BNC"
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	ChangeAmount  float64 `json:"change_amount"`
	VolumeShares  float64 `json:"volume_shares"`
	VolumeAmount  float64 `json:"volume_amount"`
	Volume        string  `json:"volume"` // compact display, e.g. "1.2M"
	Category      string  `json:"category"`
}

// Pagination is the stock repository cursor.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	LoadingMore bool `json:"loading_more"`
}

// HasMore reports whether another page can be requested.
func (p Pagination) HasMore() bool {
	return p.CurrentPage < p.TotalPages
}

// CloneStocks returns a copy of stocks that callers may keep.
func CloneStocks(stocks []StockData) []StockData {
	if stocks == nil {
		return nil
	}
	out := make([]StockData, len(stocks))
	copy(out, stocks)
	return out
}
