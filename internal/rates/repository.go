// Package rates is the currency rate repository: it fetches rates through
// the cache gateway, normalizes them against a pivot currency and pushes
// every live snapshot to subscribers.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/tasas/internal/gateway"
	"github.com/seenimoa/tasas/internal/notify"
	"github.com/seenimoa/tasas/internal/telemetry"
	"github.com/seenimoa/tasas/pkg/models"
)

// DefaultPivot is the currency every rate value is expressed in.
const DefaultPivot = "VES"

// RatesEndpoint is the upstream rates path.
const RatesEndpoint = "/api/rates"

var (
	// ErrNegativeAmount is returned when converting a negative amount.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrNoRates is recorded when the API answers without usable rates.
	ErrNoRates = errors.New("upstream returned no usable rates")
)

// Config configures a Repository.
type Config struct {
	Gateway   *gateway.Client
	Pivot     string
	Secondary Source // optional
	Reporter  telemetry.Reporter
	Now       func() time.Time
}

// Repository owns the latest rate snapshot. Construct one per process and
// share it.
type Repository struct {
	gw        *gateway.Client
	pivot     string
	secondary Source
	reporter  telemetry.Reporter
	now       func() time.Time

	sf        singleflight.Group
	listeners notify.Broadcaster[[]models.CurrencyRate]

	mu     sync.RWMutex
	latest models.RateSnapshot
}

// New creates a rate repository. Until the first fetch, Latest returns the
// built-in fallback set.
func New(cfg Config) *Repository {
	r := &Repository{
		gw:        cfg.Gateway,
		pivot:     strings.ToUpper(cfg.Pivot),
		secondary: cfg.Secondary,
		reporter:  cfg.Reporter,
		now:       cfg.Now,
	}
	if r.pivot == "" {
		r.pivot = DefaultPivot
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.gw == nil {
		r.gw = gateway.New(gateway.Config{})
	}
	r.latest = FallbackSnapshot(r.pivot, r.now(), nil)
	return r
}

// Pivot returns the pivot currency code.
func (r *Repository) Pivot() string { return r.pivot }

// GetRates returns the current rate set. It never fails: when the rates API
// is unavailable the result comes from the secondary source or the built-in
// fallback set, with Mode and Err saying so. Concurrent callers with the
// same force flag share one fetch, which keeps running if the caller that
// started it goes away. A caller whose ctx ends first gets Latest.
func (r *Repository) GetRates(ctx context.Context, forceRefresh bool) models.RateSnapshot {
	key := "cached"
	if forceRefresh {
		key = "force"
	}
	flight := r.sf.DoChan(key, func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx), forceRefresh), nil
	})
	select {
	case res := <-flight:
		snap := res.Val.(models.RateSnapshot)
		snap.Rates = models.CloneRates(snap.Rates)
		return snap
	case <-ctx.Done():
		return r.Latest()
	}
}

func (r *Repository) fetch(ctx context.Context, force bool) models.RateSnapshot {
	resp, err := r.gw.Fetch(ctx, RatesEndpoint, gateway.Options{
		UseCache:    !force,
		BypassCache: force,
		UpdateCache: true,
	})
	if err == nil {
		var snap models.RateSnapshot
		if snap, err = r.decode(resp); err == nil {
			r.mu.Lock()
			r.latest = snap
			r.mu.Unlock()
			r.listeners.Publish(models.CloneRates(snap.Rates))
			return snap
		}
	}

	telemetry.Capture(r.reporter, err, map[string]any{"op": "getRates", "forceRefresh": force})
	log.Warn().Err(err).Bool("force", force).Msg("rates API unavailable, using degraded rates")

	snap := r.degraded(ctx, err)
	r.mu.Lock()
	if r.latest.Degraded() {
		r.latest = snap
	}
	r.mu.Unlock()
	return snap
}

func (r *Repository) decode(resp *gateway.Response) (models.RateSnapshot, error) {
	var body ratesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return models.RateSnapshot{}, fmt.Errorf("decode rates: %w", err)
	}
	rates := mapRates(body, r.pivot)
	if len(rates) < 2 {
		return models.RateSnapshot{}, ErrNoRates
	}
	return models.RateSnapshot{
		Rates:       rates,
		Source:      body.Source,
		PublishedAt: body.PublicationDate,
		FetchedAt:   resp.FetchedAt,
		Mode:        models.ModeLive,
		Stale:       resp.Stale,
	}, nil
}

// degraded tries the secondary source, then the fallback set.
func (r *Repository) degraded(ctx context.Context, cause error) models.RateSnapshot {
	if r.secondary != nil {
		rates, err := r.secondary.Rates(ctx)
		if err == nil && len(rates) > 0 {
			updated := rates[0].LastUpdated
			return models.RateSnapshot{
				Rates:       withPivot(rates, r.pivot, updated),
				Source:      r.secondary.Name(),
				PublishedAt: updated,
				FetchedAt:   r.now(),
				Mode:        models.ModeSecondary,
				Err:         cause,
			}
		}
		if err == nil {
			err = ErrNoRates
		}
		telemetry.Capture(r.reporter, err, map[string]any{"op": "secondaryRates", "source": r.secondary.Name()})
	}
	return FallbackSnapshot(r.pivot, r.now(), cause)
}

// Latest returns the most recent snapshot without fetching. A live
// snapshot is never replaced by a degraded one.
func (r *Repository) Latest() models.RateSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.latest
	snap.Rates = models.CloneRates(snap.Rates)
	return snap
}

// Subscribe registers fn to receive every live rate set. Callbacks run
// synchronously on the fetching goroutine and must treat the slice as
// read-only.
func (r *Repository) Subscribe(fn func([]models.CurrencyRate)) (unsubscribe func()) {
	return r.listeners.Subscribe(fn)
}

// Search matches query case-insensitively against code or name in the
// latest snapshot. An empty query returns everything.
func (r *Repository) Search(query string) []models.CurrencyRate {
	return Search(r.Latest().Rates, query)
}

// Search filters rates by a case-insensitive substring of code or name.
func Search(rates []models.CurrencyRate, query string) []models.CurrencyRate {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.CurrencyRate, 0, len(rates))
	for _, rate := range rates {
		if q == "" ||
			strings.Contains(strings.ToLower(rate.Code), q) ||
			strings.Contains(strings.ToLower(rate.Name), q) {
			out = append(out, rate)
		}
	}
	return out
}

// Convert returns amount*rateValue. The caller guarantees rateValue > 0.
func Convert(amount, rateValue float64) (float64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	return amount * rateValue, nil
}

// AvailableTargets lists the rates source may be converted into: every
// other code with a positive value. Fiat and crypto mix freely.
func AvailableTargets(source models.CurrencyRate, all []models.CurrencyRate) []models.CurrencyRate {
	out := make([]models.CurrencyRate, 0, len(all))
	for _, r := range all {
		if r.Code == source.Code || r.Value <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
