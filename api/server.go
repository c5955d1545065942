// Package api provides the HTTP REST API server for tasas.
//
// It exposes the rate and stock repositories, the conversion engine, the
// sparkline helper and pull-to-refresh, plus a WebSocket stream that
// pushes every new rate and stock snapshot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/tasas/internal/calc"
	"github.com/seenimoa/tasas/internal/config"
	"github.com/seenimoa/tasas/internal/dashboard"
	"github.com/seenimoa/tasas/internal/rates"
	"github.com/seenimoa/tasas/internal/sparkline"
	"github.com/seenimoa/tasas/internal/stocks"
	"github.com/seenimoa/tasas/pkg/models"
	"github.com/seenimoa/tasas/pkg/utils"
)

// Version is reported by /health; set at build time.
var Version = "dev"

// Deps are the services the server exposes.
type Deps struct {
	Rates     *rates.Repository
	Stocks    *stocks.Repository
	Dashboard *dashboard.Refresher
	Gatherer  prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	AccessLog *zerolog.Logger     // defaults to the global logger
}

// Server exposes the rate and stock repositories over REST and WebSocket.
type Server struct {
	router    chi.Router
	cfg       *config.Config
	rates     *rates.Repository
	stocks    *stocks.Repository
	dash      *dashboard.Refresher
	gatherer  prometheus.Gatherer
	accessLog zerolog.Logger
	hub       *StreamHub
	unsubs    []func()
}

// NewServer creates a configured API server with all routes and middleware,
// and starts pushing repository snapshots to WebSocket clients.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		rates:     deps.Rates,
		stocks:    deps.Stocks,
		dash:      deps.Dashboard,
		gatherer:  deps.Gatherer,
		accessLog: log.Logger,
		hub:       NewStreamHub(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if deps.AccessLog != nil {
		s.accessLog = *deps.AccessLog
	}
	if s.dash == nil {
		s.dash = dashboard.New(s.rates, s.stocks)
	}

	go s.hub.Run()
	s.unsubs = append(s.unsubs,
		s.rates.Subscribe(func(r []models.CurrencyRate) {
			s.hub.Publish(StreamMessage{Type: "rates", Data: r})
		}),
		s.stocks.Subscribe(func(st []models.StockData) {
			s.hub.Publish(StreamMessage{Type: "stocks", Data: st})
		}),
	)

	s.router = s.buildRouter()
	return s
}

// Router returns the configured handler; tests drive it with httptest.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close detaches from the repositories and stops the WebSocket hub.
func (s *Server) Close() {
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
	s.hub.Stop()
}

// ListenAndServe blocks until addr fails or SIGINT/SIGTERM arrives, then
// drains in-flight requests.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	defer s.Close()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter mounts the middleware chain and every route.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if s.cfg != nil && len(s.cfg.Server.CORSOrigins) > 0 {
		origins = s.cfg.Server.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", s.handleHealth)

		// Rates
		r.Get("/rates", s.handleRates)
		r.Get("/rates/search", s.handleSearchRates)
		r.Get("/convert", s.handleConvert)
		r.Get("/spread", s.handleSpread)

		// Stocks
		r.Get("/stocks", s.handleStocks)
		r.Post("/stocks/more", s.handleLoadMore)
		r.Get("/stocks/all", s.handleAllStocks)
		r.Get("/market/index", s.handleMarketIndex)

		r.Get("/sparkline", s.handleSparkline)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/config", s.handleGetConfig)
	})

	return r
}

// requestLogger writes one structured access-log line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.accessLog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RatesResponse wraps a rate snapshot with its degraded-mode warning.
type RatesResponse struct {
	models.RateSnapshot
	Degraded bool   `json:"degraded"`
	Warning  string `json:"warning,omitempty"`
}

// ConvertLine is one converted target.
type ConvertLine struct {
	Code      string  `json:"code"`
	Rate      float64 `json:"rate"`
	Amount    float64 `json:"amount"`
	Formatted string  `json:"formatted"`
}

// ConvertResponse is returned by /convert.
type ConvertResponse struct {
	Amount  float64       `json:"amount"`
	From    string        `json:"from"`
	Results []ConvertLine `json:"results"`
}

// SpreadResponse is returned by /spread.
type SpreadResponse struct {
	Official  string   `json:"official"`
	Market    string   `json:"market"`
	Spread    *float64 `json:"spread"`
	Formatted string   `json:"formatted,omitempty"`
}

// StocksResponse is a stock page with its cursor.
type StocksResponse struct {
	Stocks     []models.StockData `json:"stocks"`
	Pagination models.Pagination  `json:"pagination"`
	MarketOpen bool               `json:"market_open"`
}

// RefreshResponse is the outcome of a pull-to-refresh.
type RefreshResponse struct {
	dashboard.Result
	Errors []string `json:"errors,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := utils.NowVET()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":        "ok",
			"version":       Version,
			"market_status": utils.SessionStatus(now),
			"time_vet":      utils.FormatDateTimeVET(now),
			"ws_clients":    s.hub.Len(),
		},
	})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	snap := s.rates.GetRates(r.Context(), queryBool(r, "refresh"))
	resp := RatesResponse{RateSnapshot: snap, Degraded: snap.Degraded()}
	if snap.Err != nil {
		resp.Warning = snap.Err.Error()
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleSearchRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.rates.Search(q)})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseFloat(strings.TrimSpace(q.Get("amount")), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		writeError(w, http.StatusBadRequest, "amount must be a finite number")
		return
	}
	from := utils.NormalizeCode(q.Get("from"))
	targets := splitCodes(q.Get("to"))
	if from == "" || len(targets) == 0 {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	snap := s.rates.GetRates(r.Context(), false)
	base, ok := snap.Find(from)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown currency: "+from)
		return
	}

	resp := ConvertResponse{Amount: amount, From: from, Results: make([]ConvertLine, 0, len(targets))}
	for _, code := range targets {
		target, ok := snap.Find(code)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown currency: "+code)
			return
		}
		v, err := calc.ConvertBetween(amount, base, target)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		resp.Results = append(resp.Results, ConvertLine{
			Code:      code,
			Rate:      base.Value / target.Value,
			Amount:    v,
			Formatted: utils.FormatAmount(v, 2),
		})
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	official := utils.NormalizeCode(r.URL.Query().Get("official"))
	market := utils.NormalizeCode(r.URL.Query().Get("market"))
	if official == "" {
		official = "USD"
	}
	if market == "" {
		market = "USDT"
	}

	snap := s.rates.GetRates(r.Context(), false)
	spread, err := calc.RateSpread(snap.Rates, official, market)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := SpreadResponse{Official: official, Market: market, Spread: spread}
	if spread != nil {
		resp.Formatted = utils.FormatPct(*spread)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	list, err := s.stocks.GetStocks(r.Context(), queryBool(r, "refresh"), page)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeStocks(w, list)
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	list, err := s.stocks.LoadMore(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeStocks(w, list)
}

func (s *Server) writeStocks(w http.ResponseWriter, list []models.StockData) {
	if list == nil {
		list = []models.StockData{}
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: StocksResponse{
			Stocks:     list,
			Pagination: s.stocks.Pagination(),
			MarketOpen: s.stocks.MarketOpen(),
		},
	})
}

func (s *Server) handleAllStocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.stocks.AllStocks(r.Context())})
}

func (s *Server) handleMarketIndex(w http.ResponseWriter, r *http.Request) {
	idx := s.stocks.MarketIndex(r.Context())
	if idx == nil {
		writeError(w, http.StatusNotFound, "market index not available")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: idx})
}

func (s *Server) handleSparkline(w http.ResponseWriter, r *http.Request) {
	var pct *float64
	if raw := r.URL.Query().Get("pct"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pct must be a number")
			return
		}
		pct = &v
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"path": sparkline.PathFor(pct)},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.dash.Refresh(r.Context())
	writeJSON(w, http.StatusOK, APIResponse{
		Success: res.Outcome != dashboard.Failed,
		Data:    RefreshResponse{Result: res, Errors: res.Errors()},
	})
}

// ============================================================
// Helpers
// ============================================================

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// splitCodes parses "USD,eur, usdt" into normalized codes.
func splitCodes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if code := utils.NormalizeCode(part); code != "" {
			out = append(out, code)
		}
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, calc.ErrUnknownCurrency):
		return http.StatusNotFound
	case errors.Is(err, rates.ErrNegativeAmount), errors.Is(err, calc.ErrInvalidRate),
		errors.Is(err, calc.ErrInvalidAmount), errors.Is(err, calc.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
