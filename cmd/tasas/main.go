// Command tasas prints Venezuelan exchange rates and BVC stock quotes and
// serves them over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seenimoa/tasas/api"
	"github.com/seenimoa/tasas/internal/config"
	"github.com/seenimoa/tasas/internal/logger"
	"github.com/seenimoa/tasas/pkg/utils"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cfg is loaded once by rootCmd's PersistentPreRunE.
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tasas",
	Short: "Tipos de cambio y cotizaciones de la Bolsa de Valores de Caracas",
	Long: `tasas fetches Venezuelan exchange rates (official and parallel, fiat
and crypto) and Caracas Stock Exchange quotes, caches them, converts between
currencies and serves everything over a small HTTP/WebSocket API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		return logger.Init(logger.Config{
			Level:          cfg.Logging.Level,
			Format:         cfg.Logging.Format,
			FileEnabled:    cfg.Logging.FileEnabled,
			FilePath:       cfg.Logging.FilePath,
			RotationSize:   cfg.Logging.RotationMB,
			RetentionDays:  cfg.Logging.RetentionDays,
			ServiceName:    "tasas",
			ServiceVersion: version,
			Console:        cmd.ErrOrStderr(),
		})
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(stocksCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tasas %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and the /ws stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		api.Version = version
		deps := api.Deps{
			Rates:     svc.rates,
			Stocks:    svc.stocks,
			Dashboard: svc.dash,
			Gatherer:  svc.registry,
		}
		if cfg.Logging.FileEnabled {
			access := logger.NewAccessLogger(accessLogPath(cfg.Logging.FilePath), cfg.Logging.RotationMB, cfg.Logging.RetentionDays)
			deps.AccessLog = &access
		}

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info().Str("addr", addr).Str("cache", cfg.Cache.Backend).Msg("Starting tasas API server")
		return api.NewServer(cfg, deps).ListenAndServe(addr)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session state, effective settings and secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		now := utils.NowVET()
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  tasas · Estado del sistema")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintf(out, "  BVC:           %s\n", utils.SessionStatus(now))
		fmt.Fprintf(out, "  Time (VET):    %s\n", utils.FormatDateTimeVET(now))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Configuration:")
		fmt.Fprintf(out, "    Rates API:     %s\n", cfg.API.BaseURL)
		fmt.Fprintf(out, "    Pivot:         %s\n", cfg.Rates.Pivot)
		fmt.Fprintf(out, "    Secondary:     %s\n", valueOr(cfg.Rates.SecondaryURL, "disabled"))
		fmt.Fprintf(out, "    Cache:         %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL())
		fmt.Fprintf(out, "    Stocks:        %d per page, fresh for %s\n", cfg.Stocks.PageSize, cfg.Stocks.CacheDuration())
		fmt.Fprintf(out, "    API Server:    %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Secrets:")
		for _, k := range config.CheckKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Fprintf(out, "    %-25s %s\n", k.Name+":", status)
		}

		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
