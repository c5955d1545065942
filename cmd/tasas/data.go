package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/tasas/internal/calc"
	"github.com/seenimoa/tasas/internal/dashboard"
	"github.com/seenimoa/tasas/internal/rates"
	"github.com/seenimoa/tasas/internal/sparkline"
	"github.com/seenimoa/tasas/pkg/models"
	"github.com/seenimoa/tasas/pkg/utils"
)

const commandTimeout = 45 * time.Second

// withServices runs fn against freshly wired services.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

// --- Rates Command ---

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show current exchange rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		query, _ := cmd.Flags().GetString("search")
		official, _ := cmd.Flags().GetString("official")
		market, _ := cmd.Flags().GetString("market")

		return withServices(cmd, func(ctx context.Context, svc *services) error {
			out := cmd.OutOrStdout()
			snap := svc.rates.GetRates(ctx, refresh)
			printRates(out, snap, rates.Search(snap.Rates, query))

			spread, err := calc.RateSpread(snap.Rates, utils.NormalizeCode(official), utils.NormalizeCode(market))
			if err == nil && spread != nil {
				fmt.Fprintf(out, "\n  Brecha %s/%s: %s\n", strings.ToUpper(official), strings.ToUpper(market), utils.FormatPct(*spread))
			}
			return nil
		})
	},
}

func init() {
	ratesCmd.Flags().Bool("refresh", false, "bypass the cache")
	ratesCmd.Flags().String("search", "", "filter by code or name")
	ratesCmd.Flags().String("official", "USD", "official rate code for the spread line")
	ratesCmd.Flags().String("market", "USDT", "market rate code for the spread line")
}

func printRates(out io.Writer, snap models.RateSnapshot, list []models.CurrencyRate) {
	fmt.Fprintf(out, "💱 Tasas (%s, %s)\n", snap.Source, snap.Mode)
	if snap.Degraded() && snap.Err != nil {
		fmt.Fprintf(out, "⚠️  %v\n", snap.Err)
	}
	if snap.Stale {
		fmt.Fprintln(out, "⚠️  datos en caché vencida")
	}
	fmt.Fprintln(out)
	for _, r := range list {
		change := ""
		if r.ChangePercent != nil {
			change = utils.FormatPct(*r.ChangePercent)
		}
		fmt.Fprintf(out, "  %-5s %-22s %16s %9s\n", r.Code, r.Name, utils.FormatLocal(r.Value, 4), change)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "  (sin resultados)")
	}
}

// --- Convert Command ---

var convertCmd = &cobra.Command{
	Use:   "convert [amount] [from] [to...]",
	Short: "Convert an amount between currencies",
	Example: `  tasas convert 100 USD VES
  tasas convert 50,5 EUR USD USDT`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		from := utils.NormalizeCode(args[1])

		return withServices(cmd, func(ctx context.Context, svc *services) error {
			out := cmd.OutOrStdout()
			snap := svc.rates.GetRates(ctx, false)
			base, ok := snap.Find(from)
			if !ok {
				return fmt.Errorf("%w: %s", calc.ErrUnknownCurrency, from)
			}
			fmt.Fprintf(out, "💱 %s %s\n", utils.FormatLocal(amount, 2), from)
			for _, raw := range args[2:] {
				code := utils.NormalizeCode(raw)
				target, ok := snap.Find(code)
				if !ok {
					return fmt.Errorf("%w: %s", calc.ErrUnknownCurrency, code)
				}
				v, err := calc.ConvertBetween(amount, base, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  = %s %s\n", utils.FormatLocal(v, 2), code)
			}
			return nil
		})
	},
}

// parseAmount accepts a decimal point or a decimal comma ("50,5").
func parseAmount(s string) (float64, error) {
	v := utils.ParseNumber(s)
	if v == 0 && strings.Trim(strings.TrimSpace(s), "0.,") != "" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v < 0 {
		return 0, rates.ErrNegativeAmount
	}
	return v, nil
}

// --- Stocks Command ---

var stocksCmd = &cobra.Command{
	Use:   "stocks",
	Short: "Show BVC stock quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		refresh, _ := cmd.Flags().GetBool("refresh")
		all, _ := cmd.Flags().GetBool("all")

		return withServices(cmd, func(ctx context.Context, svc *services) error {
			out := cmd.OutOrStdout()
			if all {
				printStocks(out, svc.stocks.AllStocks(ctx))
				return nil
			}
			// Pages past the first append to page 1, so load them in order.
			var list []models.StockData
			for p := 1; p <= page; p++ {
				var err error
				list, err = svc.stocks.GetStocks(ctx, refresh && p == 1, p)
				if err != nil {
					return err
				}
			}
			printStocks(out, list)
			pg := svc.stocks.Pagination()
			fmt.Fprintf(out, "\n  Página %d de %d", pg.CurrentPage, pg.TotalPages)
			if svc.stocks.MarketOpen() {
				fmt.Fprint(out, " · mercado abierto")
			}
			fmt.Fprintln(out)
			return nil
		})
	},
}

func init() {
	stocksCmd.Flags().Int("page", 1, "load pages 1 through N")
	stocksCmd.Flags().Bool("refresh", false, "bypass the cache")
	stocksCmd.Flags().Bool("all", false, "fetch every listed stock in one request")
}

func printStocks(out io.Writer, list []models.StockData) {
	fmt.Fprintf(out, "📈 BVC (%d)\n\n", len(list))
	for _, s := range list {
		fmt.Fprintf(out, "  %-8s %-28s %14s %9s %8s\n",
			s.Symbol, truncate(s.Name, 28), utils.FormatLocal(s.Price, 2), utils.FormatPct(s.ChangePercent), s.Volume)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- Index Command ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Show the market index and session stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *services) error {
			out := cmd.OutOrStdout()
			idx := svc.stocks.MarketIndex(ctx)
			if idx == nil {
				return fmt.Errorf("market index %s not available", cfg.Stocks.IndexSymbol)
			}
			pct := idx.ChangePercent
			fmt.Fprintf(out, "📊 %s %s\n", idx.Symbol, idx.Name)
			fmt.Fprintf(out, "  Valor:        %s (%s)\n", utils.FormatLocal(idx.Value, 2), utils.FormatPct(pct))
			fmt.Fprintf(out, "  Operaciones:  %d\n", idx.Stats.Trades)
			fmt.Fprintf(out, "  Suben/Bajan:  %d / %d (%d sin cambio)\n", idx.Stats.Advancers, idx.Stats.Decliners, idx.Stats.Unchanged)
			fmt.Fprintf(out, "  Monto:        %s\n", utils.FormatVES(idx.Stats.TotalAmount))
			fmt.Fprintf(out, "  Sparkline:    %s\n", sparkline.PathFor(&pct))
			return nil
		})
	},
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force-refresh rates and the first stock page",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *services) error {
			out := cmd.OutOrStdout()
			res := svc.dash.Refresh(ctx)
			fmt.Fprintf(out, "%s (%d tasas, %d acciones, %s)\n",
				res.Message, len(res.Rates.Rates), len(res.Stocks), res.Took.Round(time.Millisecond))
			for _, e := range res.Errors() {
				fmt.Fprintf(out, "  ⚠️  %s\n", e)
			}
			if res.Outcome == dashboard.Failed {
				return fmt.Errorf("refresh failed")
			}
			return nil
		})
	},
}
