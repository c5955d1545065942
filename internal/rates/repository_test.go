package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/tasas/internal/gateway"
	"github.com/seenimoa/tasas/pkg/models"
)

const ratesJSON = `{
	"source": "bcv",
	"publicationDate": "2026-03-02T00:00:00Z",
	"timestamp": 1772409600000,
	"rates": [
		{"currency": "usd", "rate": 36.58, "change": "0,35"},
		{"currency": "EUR", "rate": "39,71", "name": "Euro"},
		{"currency": "USDT", "rate": 37.0, "spread": -29.798},
		{"currency": "VES", "rate": 1},
		{"currency": "XXX", "rate": 0},
		{"currency": "", "rate": 5},
		{"currency": "USD", "rate": 99}
	]
}`

type stubSource struct {
	rates []models.CurrencyRate
	err   error
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) Rates(context.Context) ([]models.CurrencyRate, error) {
	return s.rates, s.err
}

type recorder struct {
	mu     sync.Mutex
	fields []map[string]any
}

func (r *recorder) Capture(_ error, f map[string]any) {
	r.mu.Lock()
	r.fields = append(r.fields, f)
	r.mu.Unlock()
}

func newRepo(t *testing.T, handler http.HandlerFunc, secondary Source) (*Repository, *recorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rep := &recorder{}
	gw := gateway.New(gateway.Config{BaseURL: srv.URL, APIKey: "k", Reporter: rep})
	return New(Config{Gateway: gw, Secondary: secondary, Reporter: rep}), rep
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RatesEndpoint {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}
}

func TestGetRatesMapsUpstream(t *testing.T) {
	repo, _ := newRepo(t, okHandler(ratesJSON), nil)
	snap := repo.GetRates(context.Background(), false)

	if snap.Mode != models.ModeLive || snap.Degraded() {
		t.Fatalf("Mode = %s, want live", snap.Mode)
	}
	wantCodes := []string{"VES", "USD", "EUR", "USDT"}
	if len(snap.Rates) != len(wantCodes) {
		t.Fatalf("got %d rates %+v, want %v", len(snap.Rates), snap.Rates, wantCodes)
	}
	for i, code := range wantCodes {
		if snap.Rates[i].Code != code {
			t.Errorf("Rates[%d].Code = %s, want %s", i, snap.Rates[i].Code, code)
		}
	}

	pivot := snap.Rates[0]
	if pivot.Value != 1 || pivot.Type != models.RateFiat {
		t.Errorf("pivot = %+v", pivot)
	}
	usd, _ := snap.Find("USD")
	if usd.Value != 36.58 || usd.ChangePercent == nil || *usd.ChangePercent != 0.35 {
		t.Errorf("USD = %+v", usd)
	}
	if usd.Name != "Dólar (BCV)" {
		t.Errorf("USD name = %q", usd.Name)
	}
	eur, _ := snap.Find("EUR")
	if eur.Value != 39.71 || eur.Name != "Euro (BCV)" {
		t.Errorf("EUR = %+v", eur)
	}
	usdt, _ := snap.Find("USDT")
	if usdt.Type != models.RateCrypto || usdt.SpreadPercentage == nil || *usdt.SpreadPercentage != -29.798 {
		t.Errorf("USDT = %+v", usdt)
	}
	if snap.PublishedAt != "2026-03-02T00:00:00Z" || snap.Source != "bcv" {
		t.Errorf("metadata = %q %q", snap.PublishedAt, snap.Source)
	}
}

func TestGetRatesFallbackOnFailure(t *testing.T) {
	repo, rep := newRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	snap := repo.GetRates(context.Background(), true)
	if snap.Mode != models.ModeFallback || snap.Err == nil {
		t.Fatalf("Mode = %s Err = %v, want fallback with cause", snap.Mode, snap.Err)
	}
	if gateway.StatusCode(snap.Err) != 500 {
		t.Errorf("cause = %v, want HTTP 500", snap.Err)
	}
	if snap.Rates[0].Code != DefaultPivot || snap.Rates[0].Value != 1 {
		t.Errorf("fallback pivot = %+v", snap.Rates[0])
	}
	usd, ok := snap.Find("USD")
	if !ok || usd.Value != 36.5 {
		t.Errorf("fallback USD = %+v", usd)
	}
	if len(rep.fields) == 0 || rep.fields[0]["op"] != "getRates" {
		t.Errorf("captures = %v", rep.fields)
	}
}

func TestGetRatesEmptyPayloadIsDegraded(t *testing.T) {
	repo, _ := newRepo(t, okHandler(`{"source":"bcv","rates":[]}`), nil)
	snap := repo.GetRates(context.Background(), false)
	if snap.Mode != models.ModeFallback || !errors.Is(snap.Err, ErrNoRates) {
		t.Fatalf("Mode = %s Err = %v", snap.Mode, snap.Err)
	}
}

func TestGetRatesSecondarySource(t *testing.T) {
	secondary := stubSource{rates: []models.CurrencyRate{
		{Code: "USD", Name: "Dólar (BCV)", Value: 36.6, Type: models.RateFiat, LastUpdated: "2026-03-02"},
	}}
	repo, _ := newRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, secondary)

	snap := repo.GetRates(context.Background(), false)
	if snap.Mode != models.ModeSecondary || snap.Source != "stub" {
		t.Fatalf("Mode = %s Source = %s", snap.Mode, snap.Source)
	}
	if len(snap.Rates) != 2 || snap.Rates[0].Code != "VES" || snap.Rates[1].Value != 36.6 {
		t.Errorf("rates = %+v", snap.Rates)
	}

	failing := stubSource{err: errors.New("down")}
	repo, rep := newRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, failing)
	if snap := repo.GetRates(context.Background(), false); snap.Mode != models.ModeFallback {
		t.Errorf("Mode = %s, want fallback", snap.Mode)
	}
	if len(rep.fields) != 2 {
		t.Errorf("captures = %d, want 2", len(rep.fields))
	}
}

func TestSubscribeReceivesLiveSnapshotsOnly(t *testing.T) {
	var fail atomic.Bool
	repo, _ := newRepo(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(ratesJSON))
	}, nil)

	var got [][]models.CurrencyRate
	unsub := repo.Subscribe(func(r []models.CurrencyRate) { got = append(got, r) })

	repo.GetRates(context.Background(), true)
	if len(got) != 1 || len(got[0]) != 4 {
		t.Fatalf("deliveries = %d", len(got))
	}

	fail.Store(true)
	repo.GetRates(context.Background(), true)
	if len(got) != 1 {
		t.Errorf("degraded snapshot was published")
	}
	if repo.Latest().Mode != models.ModeLive {
		t.Errorf("Latest replaced by degraded snapshot")
	}

	fail.Store(false)
	unsub()
	repo.GetRates(context.Background(), true)
	if len(got) != 1 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	var hits atomic.Int32
	repo, _ := newRepo(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(ratesJSON))
	}, nil)
	ctx := context.Background()

	repo.GetRates(ctx, false)
	repo.GetRates(ctx, false)
	if n := hits.Load(); n != 1 {
		t.Errorf("hits after cached reads = %d, want 1", n)
	}
	repo.GetRates(ctx, true)
	if n := hits.Load(); n != 2 {
		t.Errorf("hits after force = %d, want 2", n)
	}
}

func TestLatestBeforeFetchIsFallback(t *testing.T) {
	repo := New(Config{Pivot: "ves", Now: func() time.Time { return time.Unix(0, 0) }})
	snap := repo.Latest()
	if snap.Mode != models.ModeFallback || snap.Rates[0].Code != "VES" {
		t.Fatalf("Latest = %+v", snap)
	}
	if repo.Pivot() != "VES" {
		t.Errorf("Pivot = %s", repo.Pivot())
	}
}

func TestSearch(t *testing.T) {
	repo, _ := newRepo(t, okHandler(ratesJSON), nil)
	repo.GetRates(context.Background(), false)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"VES", "USD", "EUR", "USDT"}},
		{"usd", []string{"USD", "USDT"}},
		{"euro", []string{"EUR"}},
		{"  BOLÍVAR ", []string{"VES"}},
		{"zzz", []string{}},
	}
	for _, tt := range tests {
		got := repo.Search(tt.query)
		if got == nil {
			t.Errorf("Search(%q) returned nil", tt.query)
			continue
		}
		codes := make([]string, len(got))
		for i, r := range got {
			codes[i] = r.Code
		}
		if len(codes) != len(tt.want) {
			t.Errorf("Search(%q) = %v, want %v", tt.query, codes, tt.want)
			continue
		}
		for i := range codes {
			if codes[i] != tt.want[i] {
				t.Errorf("Search(%q) = %v, want %v", tt.query, codes, tt.want)
				break
			}
		}
	}
}

func TestConvert(t *testing.T) {
	if got, err := Convert(100, 36.58); err != nil || got != 3658 {
		t.Errorf("Convert(100, 36.58) = %v, %v; want 3658", got, err)
	}
	if got, err := Convert(0, 36.58); err != nil || got != 0 {
		t.Errorf("Convert(0) = %v, %v", got, err)
	}
	for _, amount := range []float64{-0.01, -1, -1e9} {
		if _, err := Convert(amount, 36.58); !errors.Is(err, ErrNegativeAmount) {
			t.Errorf("Convert(%v) err = %v, want ErrNegativeAmount", amount, err)
		}
	}
}

func TestAvailableTargets(t *testing.T) {
	all := []models.CurrencyRate{
		{Code: "VES", Value: 1, Type: models.RateFiat},
		{Code: "USD", Value: 36.5, Type: models.RateFiat},
		{Code: "USDT", Value: 37, Type: models.RateCrypto},
		{Code: "BAD", Value: 0, Type: models.RateFiat},
	}
	got := AvailableTargets(all[2], all)
	if len(got) != 2 || got[0].Code != "VES" || got[1].Code != "USD" {
		t.Errorf("targets of USDT = %+v", got)
	}
	got = AvailableTargets(all[0], all)
	if len(got) != 2 || got[0].Code != "USD" || got[1].Code != "USDT" {
		t.Errorf("targets of VES = %+v", got)
	}
}

func TestGetRatesSharedFetchIgnoresOtherCallersCancel(t *testing.T) {
	var hits atomic.Int32
	repo, rep := newRepo(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
		okHandler(ratesJSON)(w, r)
	}, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	gotA := make(chan models.RateSnapshot, 1)
	go func() { gotA <- repo.GetRates(ctxA, false) }()
	time.Sleep(20 * time.Millisecond)

	gotB := make(chan models.RateSnapshot, 1)
	go func() { gotB <- repo.GetRates(context.Background(), false) }()
	time.Sleep(30 * time.Millisecond)
	cancelA()

	select {
	case <-gotA:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	b := <-gotB
	if b.Mode != models.ModeLive || b.Err != nil {
		t.Fatalf("second caller got mode=%s err=%v, want live", b.Mode, b.Err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("upstream hits = %d, want 1", n)
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	if len(rep.fields) != 0 {
		t.Errorf("telemetry captured %v for a healthy fetch", rep.fields)
	}
	if repo.Latest().Mode != models.ModeLive {
		t.Error("Latest not updated by the shared fetch")
	}
}
