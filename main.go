package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/config"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/handlers"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/logging"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/mcp"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/mcp/tools"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/middleware"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "salesagent",
	Short: "Quotation email ingestion and price history",
	Long: `salesagent reads quotation emails from a mailbox, extracts the quoted
line items, resolves clients and materials against the catalog and records
prices. Uncertain extractions wait in a review queue.

Running without a subcommand starts the server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the MCP review endpoint and the ingestion scheduler",
	RunE:  runServe,
}

var (
	ingestAfter  string
	ingestBefore string
	ingestMax    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion batch and print the summary",
	Long: `Run one ingestion batch over the configured lookback window and print the
run summary as JSON. Exits non-zero when another run holds the lock.

Examples:
  # Default window
  salesagent ingest

  # Explicit window, at most 20 messages
  salesagent ingest --after 2026-03-01 --before 2026-03-08 --max 20`,
	RunE: runIngest,
}

var (
	backfillFrom string
	backfillTo   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest a historical date range in paced windows",
	Long: `Process [from, to) in windows of ingestion.backfill_batch_days, pausing
ingestion.backfill_pause between windows. Messages already in the ingestion
log are skipped, so an interrupted backfill can simply be restarted.

Example:
  salesagent backfill --from 2025-01-01 --to 2026-01-01`,
	RunE: runBackfill,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file (optional)")

	ingestCmd.Flags().StringVar(&ingestAfter, "after", "", "only messages received on or after this date (YYYY-MM-DD or RFC 3339)")
	ingestCmd.Flags().StringVar(&ingestBefore, "before", "", "only messages received before this date")
	ingestCmd.Flags().IntVar(&ingestMax, "max", 0, "maximum messages to consider (default from config)")

	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "start date, inclusive (required)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "end date, exclusive (default now)")
	_ = backfillCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(serveCmd, ingestCmd, backfillCmd, migrateCmd)
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting salesagent",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.Bool("redis_lock", cfg.Redis.Enabled()),
		zap.Bool("llm_fallback", cfg.LLM.IsEnabled()),
		zap.Duration("schedule_interval", cfg.Ingestion.ScheduleInterval))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", zap.String("error", logging.SanitizeError(err)))
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.db, logger).RegisterRoutes(mux)
	handlers.RegisterMetricsRoute(mux, a.registry)
	handlers.NewReviewHandler(a.reviews, logger).RegisterRoutes(mux)
	handlers.NewTelemetryHandler(a.telemetry, logger).RegisterRoutes(mux)
	handlers.NewResolverHandler(a.resolver, logger).RegisterRoutes(mux)
	if a.ingestion != nil {
		handlers.NewIngestionHandler(a.ingestion, a.ingestLog, logger).RegisterRoutes(mux)
	}

	mcpServer := mcp.NewServer(cfg.Version, &tools.Deps{
		Reviews:   a.reviews,
		Telemetry: a.telemetry,
		Ingestion: a.ingestion,
		Logger:    logger,
	}, logger)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger, a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No WriteTimeout: a manual run answers only when the batch is done.
	}

	if a.ingestion != nil && cfg.Ingestion.ScheduleInterval > 0 {
		go a.ingestion.RunScheduler(ctx, cfg.Ingestion.ScheduleInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	opts := services.RunOptions{MaxMessages: ingestMax}
	var err error
	if opts.After, err = parseDateFlag("after", ingestAfter); err != nil {
		return err
	}
	if opts.Before, err = parseDateFlag("before", ingestBefore); err != nil {
		return err
	}

	return withIngestion(cmd, func(ctx context.Context, ingestion services.IngestionService) (*services.RunSummary, error) {
		return ingestion.Run(ctx, opts)
	})
}

func runBackfill(cmd *cobra.Command, args []string) error {
	from, err := parseDateFlag("from", backfillFrom)
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", backfillTo)
	if err != nil {
		return err
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	return withIngestion(cmd, func(ctx context.Context, ingestion services.IngestionService) (*services.RunSummary, error) {
		return ingestion.Backfill(ctx, from, to)
	})
}

// withIngestion builds the app, runs fn and prints the resulting summary.
func withIngestion(cmd *cobra.Command, fn func(context.Context, services.IngestionService) (*services.RunSummary, error)) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ingestion, err := a.requireIngestion()
	if err != nil {
		return err
	}

	summary, runErr := fn(ctx, ingestion)
	if errors.Is(runErr, apperrors.ErrRunInProgress) {
		return fmt.Errorf("another ingestion run is in progress")
	}
	if summary != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return runErr
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	return database.Migrate(cfg.Database.ConnectionString(), cfg.MigrationsPath, logger)
}

func parseDateFlag(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD or RFC 3339, got %q", name, raw)
}
