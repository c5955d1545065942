// Package stocks is the BVC stock repository: a paginated, incrementally
// appended in-memory snapshot of the market feed with market-open state
// and the designated market index.
package stocks

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/tasas/internal/gateway"
	"github.com/seenimoa/tasas/internal/notify"
	"github.com/seenimoa/tasas/internal/telemetry"
	"github.com/seenimoa/tasas/pkg/models"
)

const (
	// MarketEndpoint is the upstream market path.
	MarketEndpoint = "/api/bvc/market"

	DefaultPageSize      = 20
	DefaultCacheDuration = 2 * time.Minute
	DefaultIndexSymbol   = "IBC"

	// allStocksLimit is the page size for the unpaginated autocomplete fetch.
	allStocksLimit = 500
)

// ErrStaleFeed is reported when the gateway answers from an expired cache
// entry because the market feed could not be reached.
var ErrStaleFeed = errors.New("market feed unreachable, using stale cache entry")

// Config configures a Repository.
type Config struct {
	Gateway       *gateway.Client
	PageSize      int
	CacheDuration time.Duration
	IndexSymbol   string
	Reporter      telemetry.Reporter
	Now           func() time.Time
}

// Repository owns the stock snapshot and pagination cursor. GetStocks
// calls are serialized; readers never block on the network.
type Repository struct {
	gw            *gateway.Client
	pageSize      int
	cacheDuration time.Duration
	indexSymbol   string
	reporter      telemetry.Reporter
	now           func() time.Time

	fetchMu     sync.Mutex // held for a whole GetStocks call
	loadingMore atomic.Bool
	listeners   notify.Broadcaster[[]models.StockData]

	mu          sync.RWMutex // guards the fields below
	stocks      []models.StockData
	seen        map[string]bool
	currentPage int
	totalPages  int
	lastFetch   time.Time
	marketOpen  bool
}

// New creates a stock repository.
func New(cfg Config) *Repository {
	r := &Repository{
		gw:            cfg.Gateway,
		pageSize:      cfg.PageSize,
		cacheDuration: cfg.CacheDuration,
		indexSymbol:   strings.ToUpper(strings.TrimSpace(cfg.IndexSymbol)),
		reporter:      cfg.Reporter,
		now:           cfg.Now,
		seen:          make(map[string]bool),
		currentPage:   1,
		totalPages:    1,
	}
	if r.gw == nil {
		r.gw = gateway.New(gateway.Config{})
	}
	if r.pageSize <= 0 {
		r.pageSize = DefaultPageSize
	}
	if r.cacheDuration <= 0 {
		r.cacheDuration = DefaultCacheDuration
	}
	if r.indexSymbol == "" {
		r.indexSymbol = DefaultIndexSymbol
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// GetStocks returns the snapshot after making sure page is loaded.
//
// Page 1 replaces the snapshot, later pages append symbols not seen yet.
// A fresh page 1 snapshot (younger than the cache duration) and pages past
// the last one are answered without a network call. When the fetch fails
// the existing snapshot is returned if there is one; otherwise the error.
//
// Subscribers are notified while the call is still in progress, so they
// must not call GetStocks or LoadMore themselves.
func (r *Repository) GetStocks(ctx context.Context, forceRefresh bool, page int) ([]models.StockData, error) {
	if page < 1 {
		page = 1
	}
	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	r.mu.Lock()
	if forceRefresh {
		r.currentPage = 1
		r.totalPages = 1
		r.stocks = nil
		r.seen = make(map[string]bool)
	}
	fresh := len(r.stocks) > 0 && r.now().Sub(r.lastFetch) < r.cacheDuration
	beyond := page > r.totalPages
	r.mu.Unlock()

	if (!forceRefresh && page == 1 && fresh) || beyond {
		return r.Snapshot(), nil
	}

	resp, err := r.gw.Fetch(ctx, MarketEndpoint, gateway.Options{
		Params:      r.params(page, r.pageSize),
		UseCache:    !forceRefresh,
		BypassCache: forceRefresh,
		UpdateCache: true,
		CacheTTL:    r.cacheDuration,
	})
	if err != nil {
		return r.fallback(err, page)
	}

	decoded := decodeMarket(resp.Body)
	if decoded.Shape == ShapeUnknown {
		log.Warn().Str("url", resp.URL).Msg("unrecognized market payload, treating as empty page")
	}
	if resp.Stale {
		// Keep lastFetch so the next call retries the feed.
		if len(r.Snapshot()) > 0 {
			return r.fallback(ErrStaleFeed, page)
		}
		telemetry.Capture(r.reporter, ErrStaleFeed, map[string]any{"hasCachedData": true, "page": page})
		return r.apply(decoded, page, false), nil
	}
	snapshot := r.apply(decoded, page, true)
	r.listeners.Publish(models.CloneStocks(snapshot))
	return snapshot, nil
}

// apply merges a decoded page into the snapshot and returns a copy of it.
// Only live pages advance lastFetch.
func (r *Repository) apply(p marketPage, page int, live bool) []models.StockData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if page == 1 {
		r.stocks = make([]models.StockData, 0, len(p.Stocks))
		r.seen = make(map[string]bool, len(p.Stocks))
	}
	for i, s := range p.Stocks {
		if r.seen[p.Keys[i]] {
			continue
		}
		r.seen[p.Keys[i]] = true
		r.stocks = append(r.stocks, s)
	}

	r.totalPages = p.TotalPages
	if r.totalPages < 1 {
		r.totalPages = page
	}
	r.currentPage = min(page, r.totalPages)
	if p.MarketOpen != nil {
		r.marketOpen = *p.MarketOpen
	}
	if live {
		r.lastFetch = r.now()
	}
	return models.CloneStocks(r.stocks)
}

func (r *Repository) fallback(err error, page int) ([]models.StockData, error) {
	snapshot := r.Snapshot()
	if len(snapshot) == 0 {
		telemetry.Capture(r.reporter, err, map[string]any{"hasCachedData": false, "page": page})
		return nil, err
	}
	telemetry.Capture(r.reporter, err, map[string]any{"hasCachedData": true, "page": page})
	log.Warn().Err(err).Int("page", page).Int("cached", len(snapshot)).Msg("market fetch failed, serving cached stocks")
	return snapshot, nil
}

// LoadMore fetches the page after the current one. It is a no-op that
// returns the snapshot when a load is already running or no pages remain.
func (r *Repository) LoadMore(ctx context.Context) ([]models.StockData, error) {
	if !r.loadingMore.CompareAndSwap(false, true) {
		return r.Snapshot(), nil
	}
	defer r.loadingMore.Store(false)

	p := r.Pagination()
	if p.CurrentPage >= p.TotalPages {
		return r.Snapshot(), nil
	}
	return r.GetStocks(ctx, false, p.CurrentPage+1)
}

// AllStocks fetches every listed stock in one request, bypassing the
// pagination state. It returns an empty slice on any failure.
func (r *Repository) AllStocks(ctx context.Context) []models.StockData {
	resp, err := r.gw.Fetch(ctx, MarketEndpoint, gateway.Options{
		Params: r.params(1, allStocksLimit),
	})
	if err != nil {
		telemetry.Capture(r.reporter, err, map[string]any{"op": "allStocks"})
		return []models.StockData{}
	}
	return dedupe(decodeMarket(resp.Body))
}

// MarketIndex returns the designated index with session stats, or nil when
// the index is missing or the request fails.
func (r *Repository) MarketIndex(ctx context.Context) *models.MarketIndex {
	resp, err := r.gw.Fetch(ctx, MarketEndpoint, gateway.Options{
		Params:   r.params(1, r.pageSize),
		UseCache: true,
		CacheTTL: r.cacheDuration,
	})
	if err != nil {
		telemetry.Capture(r.reporter, err, map[string]any{"op": "marketIndex"})
		return nil
	}

	p := decodeMarket(resp.Body)
	for _, idx := range p.Indices {
		if !strings.EqualFold(idx.Symbol, r.indexSymbol) {
			continue
		}
		if p.Stats != nil {
			idx.Stats = *p.Stats
		}
		if p.MarketOpen != nil {
			idx.MarketOpen = *p.MarketOpen
		} else {
			idx.MarketOpen = r.MarketOpen()
		}
		idx.UpdatedAt = p.UpdatedAt
		return &idx
	}
	return nil
}

// Snapshot returns a copy of the current stocks without fetching.
func (r *Repository) Snapshot() []models.StockData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.CloneStocks(r.stocks)
}

// Pagination returns the current cursor.
func (r *Repository) Pagination() models.Pagination {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.Pagination{
		CurrentPage: r.currentPage,
		TotalPages:  r.totalPages,
		LoadingMore: r.loadingMore.Load(),
	}
}

// MarketOpen reports the last market state upstream announced.
func (r *Repository) MarketOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.marketOpen
}

// Subscribe registers fn to receive the full snapshot after every
// successful fetch.
func (r *Repository) Subscribe(fn func([]models.StockData)) (unsubscribe func()) {
	return r.listeners.Subscribe(fn)
}

func (r *Repository) params(page, limit int) map[string]string {
	return map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
}

// dedupe drops repeated keys within one decoded page.
func dedupe(p marketPage) []models.StockData {
	seen := make(map[string]bool, len(p.Stocks))
	stocks := make([]models.StockData, 0, len(p.Stocks))
	for i, s := range p.Stocks {
		if seen[p.Keys[i]] {
			continue
		}
		seen[p.Keys[i]] = true
		stocks = append(stocks, s)
	}
	return stocks
}
