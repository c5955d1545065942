// Package dashboard implements pull-to-refresh: rates and the first stock
// page are refreshed together and the outcome is summarized for a
// non-blocking notification.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/tasas/pkg/models"
)

// Outcome summarizes a refresh.
type Outcome string

const (
	Updated Outcome = "updated" // both sources answered live
	Partial Outcome = "partial" // one source failed or was degraded
	Failed  Outcome = "failed"  // neither source answered
)

// Message returns the user-facing notification text.
func (o Outcome) Message() string {
	switch o {
	case Updated:
		return "Datos actualizados"
	case Partial:
		return "Actualización parcial"
	default:
		return "No se pudo actualizar"
	}
}

// RateSource is the part of the rate repository a refresh needs.
type RateSource interface {
	GetRates(ctx context.Context, forceRefresh bool) models.RateSnapshot
}

// StockSource is the part of the stock repository a refresh needs.
type StockSource interface {
	GetStocks(ctx context.Context, forceRefresh bool, page int) ([]models.StockData, error)
	Snapshot() []models.StockData
}

// Result is the state after a refresh. Stocks falls back to the list shown
// before the refresh when the stock fetch fails.
type Result struct {
	Outcome   Outcome             `json:"outcome"`
	Message   string              `json:"message"`
	Rates     models.RateSnapshot `json:"rates"`
	Stocks    []models.StockData  `json:"stocks"`
	RatesErr  error               `json:"-"`
	StocksErr error               `json:"-"`
	Took      time.Duration       `json:"took"`
}

// Errors lists the failures behind a non-updated outcome.
func (r Result) Errors() []string {
	var out []string
	if r.RatesErr != nil {
		out = append(out, fmt.Sprintf("rates: %v", r.RatesErr))
	}
	if r.StocksErr != nil {
		out = append(out, fmt.Sprintf("stocks: %v", r.StocksErr))
	}
	return out
}

// Refresher runs dashboard refreshes.
type Refresher struct {
	rates  RateSource
	stocks StockSource
}

// New creates a Refresher.
func New(rates RateSource, stocks StockSource) *Refresher {
	return &Refresher{rates: rates, stocks: stocks}
}

// Refresh force-fetches rates and stock page 1 concurrently.
func (d *Refresher) Refresh(ctx context.Context) Result {
	start := time.Now()
	previous := d.stocks.Snapshot()

	var (
		mu  sync.Mutex
		res Result
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap := d.rates.GetRates(gctx, true)
		mu.Lock()
		res.Rates = snap
		if snap.Degraded() {
			res.RatesErr = snap.Err
			if res.RatesErr == nil {
				res.RatesErr = fmt.Errorf("rates served in %s mode", snap.Mode)
			}
		}
		mu.Unlock()
		return nil // non-fatal
	})

	g.Go(func() error {
		stocks, err := d.stocks.GetStocks(gctx, true, 1)
		mu.Lock()
		if err != nil {
			res.StocksErr = err
			stocks = previous
		}
		res.Stocks = stocks
		mu.Unlock()
		return nil
	})

	_ = g.Wait()

	failures := 0
	if res.RatesErr != nil {
		failures++
	}
	if res.StocksErr != nil {
		failures++
	}
	switch failures {
	case 0:
		res.Outcome = Updated
	case 1:
		res.Outcome = Partial
	default:
		res.Outcome = Failed
	}
	res.Message = res.Outcome.Message()
	res.Took = time.Since(start)

	ev := log.Info()
	if failures > 0 {
		ev = log.Warn().Strs("errors", res.Errors())
	}
	ev.Str("outcome", string(res.Outcome)).Dur("took", res.Took).
		Int("rates", len(res.Rates.Rates)).Int("stocks", len(res.Stocks)).
		Msg("dashboard refresh")
	return res
}
