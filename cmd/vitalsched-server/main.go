package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vitalsched/vitalsched/internal/config"
	"github.com/vitalsched/vitalsched/internal/domain/placement"
	"github.com/vitalsched/vitalsched/internal/domain/queue"
	"github.com/vitalsched/vitalsched/internal/domain/scheduler"
	"github.com/vitalsched/vitalsched/internal/domain/tracker"
	"github.com/vitalsched/vitalsched/internal/domain/workload"
	"github.com/vitalsched/vitalsched/internal/platform/auth"
	"github.com/vitalsched/vitalsched/internal/platform/db"
	"github.com/vitalsched/vitalsched/internal/platform/fabric"
	"github.com/vitalsched/vitalsched/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vitalsched-server",
		Short: "Healthcare IoT task scheduling server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildPipeline assembles the scheduling core from configuration. The archive
// is nil when no database is configured; completions then live in memory
// only.
func buildPipeline(cfg *config.Config, archive tracker.CompletionArchive, logger zerolog.Logger) (*scheduler.Service, error) {
	fab := fabric.NewSimulated(cfg.EdgeRates(), cfg.CloudRates(), logger)
	q := queue.New(cfg.QueueCapacity, logger)
	engine := placement.NewEngine(fab, cfg.EdgeSlackFactor, cfg.PlacementSeed, logger)
	tr := tracker.New(fab, archive, logger)
	return scheduler.NewService(q, engine, fab, tr, cfg.PlacementPolicy, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database is optional; without it completion records are not archived.
	ctx := context.Background()
	var archive tracker.CompletionArchive
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		archive = tracker.NewArchivePG(pool)
		logger.Info().Msg("connected to database")
	} else {
		archive = tracker.NewArchiveMemory()
		logger.Warn().Msg("DATABASE_URL not set; completion records are kept in memory only")
	}

	svc, err := buildPipeline(cfg, archive, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build scheduling pipeline")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth mode active, all requests get admin access")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	handler := scheduler.NewHandler(svc)
	handler.RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a synthetic workload through the scheduling pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			readings, _ := cmd.Flags().GetInt("readings")
			seed, _ := cmd.Flags().GetInt64("seed")
			return runSimulation(patients, readings, seed)
		},
	}
	cmd.Flags().Int("patients", 20, "Number of monitored patients")
	cmd.Flags().Int("readings", 10, "Readings per patient")
	cmd.Flags().Int64("seed", 1, "Workload generator seed")
	return cmd
}

func runSimulation(patients, readingsPerPatient int, seed int64) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := buildPipeline(cfg, tracker.NewArchiveMemory(), logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	gen := workload.New(seed, logger)
	rejected := 0
	for _, r := range gen.Generate(patients, readingsPerPatient) {
		res, err := svc.SubmitAt(ctx, r.PatientID, r.Vitals, r.Urgency, r.Offset)
		if err != nil {
			return err
		}
		if !res.Accepted {
			rejected++
			continue
		}

		// Drain eagerly so admission-queue capacity models dispatch
		// backpressure rather than total run volume.
		if _, err := svc.DispatchQueued(ctx); err != nil {
			return err
		}
		svc.ExecutePending(ctx)
	}

	summary := svc.MetricsSummary()
	logger.Info().
		Int("completed", summary.TotalTasks).
		Int("rejected", rejected).
		Float64("compliance", summary.ComplianceRate).
		Float64("p99_response", summary.P99).
		Msg("simulation complete")

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			pool, err := connectForMigration()
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			pool, err := connectForMigration()
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func connectForMigration() (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	return db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}
