package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/seenimoa/tasas/pkg/models"
)

type fakeRates struct{ mode models.SnapshotMode }

func (f fakeRates) GetRates(context.Context, bool) models.RateSnapshot {
	snap := models.RateSnapshot{
		Rates: []models.CurrencyRate{{Code: "VES", Value: 1}, {Code: "USD", Value: 36.5}},
		Mode:  f.mode,
	}
	if f.mode != models.ModeLive {
		snap.Err = errors.New("rates down")
	}
	return snap
}

type fakeStocks struct {
	err      error
	previous []models.StockData
}

func (f fakeStocks) GetStocks(context.Context, bool, int) ([]models.StockData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.StockData{{Symbol: "BNC"}, {Symbol: "BPV"}}, nil
}

func (f fakeStocks) Snapshot() []models.StockData { return f.previous }

func TestRefreshOutcome(t *testing.T) {
	down := errors.New("market down")
	prev := []models.StockData{{Symbol: "OLD"}}

	tests := []struct {
		name       string
		rates      fakeRates
		stocks     fakeStocks
		want       Outcome
		wantStocks int
	}{
		{"both live", fakeRates{models.ModeLive}, fakeStocks{}, Updated, 2},
		{"rates degraded", fakeRates{models.ModeFallback}, fakeStocks{}, Partial, 2},
		{"stocks failed", fakeRates{models.ModeLive}, fakeStocks{err: down, previous: prev}, Partial, 1},
		{"both failed", fakeRates{models.ModeSecondary}, fakeStocks{err: down, previous: prev}, Failed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(tt.rates, tt.stocks).Refresh(context.Background())
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.want)
			}
			if res.Message != tt.want.Message() {
				t.Errorf("Message = %q", res.Message)
			}
			if len(res.Stocks) != tt.wantStocks {
				t.Errorf("Stocks = %+v", res.Stocks)
			}
			if len(res.Rates.Rates) != 2 {
				t.Errorf("rates missing from result")
			}
			if tt.want == Updated && len(res.Errors()) != 0 {
				t.Errorf("Errors = %v", res.Errors())
			}
			if tt.want == Failed && len(res.Errors()) != 2 {
				t.Errorf("Errors = %v", res.Errors())
			}
		})
	}
}
