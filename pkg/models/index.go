package models

// MarketStats aggregates one session of the stock market.
type MarketStats struct {
	TotalVolume float64 `json:"total_volume"` // shares
	TotalAmount float64 `json:"total_amount"` // pivot currency
	Trades      int     `json:"trades"`
	Advancers   int     `json:"advancers"`
	Decliners   int     `json:"decliners"`
	Unchanged   int     `json:"unchanged"`
}

// MarketIndex is the designated market index (e.g., IBC) with session stats.
type MarketIndex struct {
	Symbol        string      `json:"symbol"`
	Name          string      `json:"name"`
	Value         float64     `json:"value"`
	ChangePercent float64     `json:"change_percent"`
	ChangeAmount  float64     `json:"change_amount"`
	Stats         MarketStats `json:"stats"`
	MarketOpen    bool        `json:"market_open"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
}
