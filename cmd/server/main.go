package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/schoolsetu/reconcile/internal/admin"
	"github.com/schoolsetu/reconcile/internal/config"
	"github.com/schoolsetu/reconcile/internal/engine"
	"github.com/schoolsetu/reconcile/internal/logging"
	"github.com/schoolsetu/reconcile/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_file_size", cfg.Upload.MaxFileSize,
		"fee_installments", cfg.Fees.InstallmentCount,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	// Build the derived-data policy from the fee config
	derive := deriveConfig(cfg)

	store := engine.NewPgStore(pool)
	setup := engine.NewSetupEngine(store, derive, slog.Default())
	migrate := engine.NewMigrationEngine(store, derive, slog.Default())
	families := engine.NewFamilyImporter(store, slog.Default())

	slog.Info("migration tables registered", "count", len(engine.Tables()))

	server := web.NewServer(cfg, setup, migrate, families, admin.NewResetter(pool))

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// deriveConfig overlays the configured fee policy onto the engine
// defaults. Categories and grade bands are fixed; the split, count and
// due day are operator tunable.
func deriveConfig(cfg *config.Config) engine.DeriveConfig {
	d := engine.DefaultDeriveConfig()
	d.TuitionRatio = decimal.NewFromFloat(cfg.Fees.TuitionRatio)
	d.DevelopmentRatio = decimal.NewFromFloat(cfg.Fees.DevelopmentRatio)
	d.OtherRatio = decimal.NewFromFloat(cfg.Fees.OtherRatio)
	d.InstallmentDueDay = cfg.Fees.InstallmentDueDay

	if n := cfg.Fees.InstallmentCount; n != d.InstallmentCount {
		d.InstallmentCount = n
		// Spread installments evenly across the 12-month academic year,
		// starting one month after the year start like the default plan.
		offsets := make([]int, n)
		for i := range offsets {
			offsets[i] = i*12/n + 1
		}
		d.InstallmentMonthOffsets = offsets
	}
	return d
}
