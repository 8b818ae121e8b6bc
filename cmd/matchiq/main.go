// Command matchiq is the MatchIQ operator CLI.
//
// Usage:
//
//	matchiq migrate
//	matchiq scan --dry-run
//	matchiq replay --last 5 --dry-run
//	matchiq strategies --alert-type IN_PLAY
//	matchiq metrics --family ODDS
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TanguyDH/matchIQ/internal/app"
	"github.com/TanguyDH/matchIQ/internal/config"
	"github.com/TanguyDH/matchIQ/internal/db"
	"github.com/TanguyDH/matchIQ/internal/engine"
	"github.com/TanguyDH/matchIQ/internal/notifications"
	"github.com/TanguyDH/matchIQ/internal/store"
)

// logger is replaced by loadConfig once LOG_LEVEL and LOG_FORMAT are known.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "matchiq",
		Short:        "MatchIQ operator CLI",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(replayCmd())
	root.AddCommand(strategiesCmd())
	root.AddCommand(metricsCmd())
	return root
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			start := time.Now()
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Schema applied", "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// scan command
// --------------------------------------------------------------------------

func scanCmd() *cobra.Command {
	var dryRun, mock bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan tick and deliver its alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if cmd.Flags().Changed("mock") {
				cfg.UseMockData = mock
			}
			if err := cfg.Validate(true); err != nil {
				return err
			}

			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Scanner.RunOnce(ctx)
			if err != nil {
				return err
			}
			sent, failed := a.Dispatcher.Drain(ctx)
			logger.Info("Scan finished",
				"duration", res.Duration.Round(time.Millisecond),
				"summary", res.Summary(),
				"alerts_sent", sent,
				"alerts_failed", failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Keep triggers in memory and print alerts instead of sending")
	cmd.Flags().BoolVar(&mock, "mock", false, "Read matches from the mock feed instead of SportMonks")
	return cmd
}

// --------------------------------------------------------------------------
// replay command
// --------------------------------------------------------------------------

func replayCmd() *cobra.Command {
	var (
		last   int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-send alerts for the most recent stored triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 1 {
				return fmt.Errorf("--last must be at least 1")
			}
			return runWith(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				var sender notifications.Sender
				if !dryRun {
					s, err := app.NewSender(cfg, logger)
					if err != nil {
						return err
					}
					sender = s
				}

				replayer := notifications.NewReplayer(st, sender, cmd.OutOrStdout(), logger)
				start := time.Now()
				result, err := replayer.Replay(ctx, last, dryRun)
				if err != nil {
					return err
				}
				logger.Info("Replay finished",
					"dry_run", dryRun,
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("replay error", "error", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 5, "Number of recent triggers to replay")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print alert previews instead of sending")
	return cmd
}

// --------------------------------------------------------------------------
// strategies command
// --------------------------------------------------------------------------

func strategiesCmd() *cobra.Command {
	var alertType string
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List active strategies and their rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			vt := engine.ValueType(strings.ToUpper(alertType))
			return runWith(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				strategies, err := st.ListActiveStrategies(ctx, vt)
				if err != nil {
					return err
				}
				return printStrategies(cmd.OutOrStdout(), strategies, engine.DefaultCatalog())
			})
		},
	}
	cmd.Flags().StringVar(&alertType, "alert-type", string(engine.ValueInPlay), "Alert type (IN_PLAY, PRE_MATCH, ODDS)")
	return cmd
}

// printStrategies writes one block per strategy. Rules whose metric is not in
// the catalog are flagged: they can never pass.
func printStrategies(w io.Writer, strategies []engine.Strategy, catalog *engine.Catalog) error {
	if len(strategies) == 0 {
		_, err := fmt.Fprintln(w, "No active strategies.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range strategies {
		fmt.Fprintf(tw, "%s\t%s\t(%d rules)\n", s.ID, s.Name, len(s.Rules))
		for i, r := range s.Rules {
			scope := string(r.TeamScope)
			if scope == "" {
				scope = "-"
			}
			note := ""
			if _, ok := catalog.Lookup(r.Metric); !ok && r.TeamScope != engine.ScopeNone {
				note = "unknown metric"
			}
			fmt.Fprintf(tw, "  %d.\t%s\t%s\t%s %s\t%s\t%s\n",
				i+1, r.ValueType, r.Metric, r.Comparator.Symbol(), formatTarget(r.Value), scope, note)
		}
	}
	return tw.Flush()
}

func formatTarget(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// --------------------------------------------------------------------------
// metrics command
// --------------------------------------------------------------------------

func metricsCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "List the metrics rules can reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printMetrics(cmd.OutOrStdout(), engine.DefaultCatalog(), engine.ValueType(strings.ToUpper(family)))
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "Filter by value type (IN_PLAY, PRE_MATCH, ODDS); empty = all")
	return cmd
}

func printMetrics(w io.Writer, catalog *engine.Catalog, family engine.ValueType) error {
	defs := catalog.Metrics(family)
	if len(defs) == 0 {
		return fmt.Errorf("no metrics for family %q", family)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAMILY\tCATEGORY\tMETRIC\tKEYS\tDESCRIPTION")
	for _, d := range defs {
		keys := "home_" + d.Name + ", away_" + d.Name
		if d.MatchLevel {
			keys = d.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Family, d.Category, d.Name, keys, d.Description)
	}
	return tw.Flush()
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = cfg.NewLoggerTo(os.Stderr)
	return cfg, nil
}

// runWith handles config loading, DB connection, and context cancellation
// for commands that only read or write Postgres.
func runWith(fn func(ctx context.Context, cfg *config.Config, st *store.Store) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, store.New(pool))
}
