package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pharmassist/pharmassist/internal/config"
	"github.com/pharmassist/pharmassist/internal/domain/admin"
	"github.com/pharmassist/pharmassist/internal/domain/document"
	"github.com/pharmassist/pharmassist/internal/domain/intake"
	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/internal/domain/report"
	"github.com/pharmassist/pharmassist/internal/domain/run"
	"github.com/pharmassist/pharmassist/internal/domain/triage"
	"github.com/pharmassist/pharmassist/internal/pipeline"
	"github.com/pharmassist/pharmassist/internal/platform/db"
	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/internal/platform/middleware"
	"github.com/pharmassist/pharmassist/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmassist-server",
		Short: "Pharmacist OTC decision assistant API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(inMemory)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Run without Postgres, seeded with the bundled dataset")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(false); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(false); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				applied := "-"
				if s.AppliedAt != nil {
					applied = s.AppliedAt.Format(time.RFC3339)
				}
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, applied)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the bundled synthetic pharmacy dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(false); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			ds, err := seed.Default()
			if err != nil {
				return err
			}
			counts, err := seed.Load(ctx, ds,
				patient.NewPatientRepoPG(pool),
				patient.NewVisitRepoPG(pool),
				patient.NewInventoryRepoPG(pool))
			if err != nil {
				return err
			}
			if counts.Skipped {
				fmt.Println("Dataset already loaded, nothing to do.")
				return nil
			}
			fmt.Printf("Loaded %d patients, %d visits, %d products.\n",
				counts.Patients, counts.Visits, counts.Inventory)
			return nil
		},
	}
}

func runServer(inMemory bool) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env := os.Getenv("ENV"); env == "development" || env == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(inMemory); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		runRepo    run.RunRepository
		eventRepo  run.EventRepository
		patients   patient.PatientRepository
		visits     patient.VisitRepository
		inventory  patient.InventoryRepository
		states     patient.AnalysisStateRepository
		docRepo    document.DocumentRepository
		audit      admin.AuditRepository
		healthFunc echo.HandlerFunc
	)

	if inMemory {
		store := patient.NewInMemoryStore()
		patients = store.Patients()
		visits = store.Visits()
		inventory = store.Inventory()
		states = store.AnalysisStates()
		runRepo = run.NewInMemoryRunRepo()
		eventRepo = run.NewInMemoryEventRepo()
		docRepo = document.NewInMemoryDocumentRepo()
		audit = admin.NewInMemoryAuditStore()

		ds, err := seed.Default()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to parse bundled dataset")
		}
		counts, err := seed.Load(ctx, ds, patients, visits, inventory)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed in-memory store")
		}
		logger.Info().
			Int("patients", counts.Patients).
			Int("visits", counts.Visits).
			Int("inventory", counts.Inventory).
			Msg("in-memory store seeded")
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		patients = patient.NewPatientRepoPG(pool)
		visits = patient.NewVisitRepoPG(pool)
		inventory = patient.NewInventoryRepoPG(pool)
		states = patient.NewAnalysisStateRepoPG(pool)
		runRepo = run.NewRunRepoPG(pool)
		eventRepo = run.NewEventRepoPG(pool)
		docRepo = document.NewDocumentRepoPG(pool)
		audit = admin.NewAuditRepoPG(pool)
		healthFunc = db.HealthHandler(pool)
	}

	secret := cfg.StreamTokenSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn().Msg("STREAM_TOKEN_SECRET not set, using an ephemeral secret; stream tokens will not survive a restart")
	}

	bus := eventbus.New(eventRepo, logger)
	runSvc := run.NewService(runRepo, eventRepo, run.NewStreamTokenIssuer(secret), logger)

	var gen llm.Generator = llm.Disabled{}
	if cfg.LLMEndpoint != "" {
		gen = llm.NewHTTPGenerator(cfg.LLMEndpoint, logger, llm.WithTimeout(cfg.LLMTimeout))
		logger.Info().Msg("model generator enabled")
	}

	var selector triage.QuestionSelector
	if cfg.LLMFollowupEnabled {
		selector = triage.NewModelSelector(gen, logger)
	}
	engine := triage.NewEngine(selector)
	intakes := intake.NewExtractor(gen, logger)
	composer := report.NewComposer(gen, cfg.LLMReportEnabled, logger)
	planner := report.NewPlanner(gen, logger)

	orch := pipeline.NewOrchestrator(runRepo, eventRepo, bus,
		patients, visits, inventory,
		intakes, engine, composer, planner,
		pipeline.Config{PrebriefEnabled: true, PlannerEnabled: cfg.PlannerEnabled},
		logger)
	runSvc.SetExecutor(orch)

	worker := pipeline.NewRefreshWorker(patients, visits, states, runRepo, orch, logger)
	worker.Start(ctx)

	patientSvc := patient.NewService(patients, visits, states, runRepo, worker, logger)
	docSvc := document.NewService(docRepo, document.NewPDFToTextExtractor(), intakes,
		cfg.UploadMaxBytes, cfg.ExtractTimeout, logger)

	adminSvc := admin.NewService(audit, logger)
	adminSvc.RegisterPreview("runs", func(ctx context.Context, limit int) (interface{}, error) {
		rows, _, err := runRepo.List(ctx, limit, 0)
		return rows, err
	})
	adminSvc.RegisterPreview("patients", func(ctx context.Context, limit int) (interface{}, error) {
		rows, _, err := patients.List(ctx, limit, 0)
		return rows, err
	})
	adminSvc.RegisterPreview("inventory", func(ctx context.Context, limit int) (interface{}, error) {
		rows, err := inventory.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil
	})
	adminSvc.RegisterPreview("analysis_state", func(ctx context.Context, limit int) (interface{}, error) {
		rows, err := states.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "25M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "Last-Event-ID", admin.HeaderAPIKey},
	}))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if healthFunc != nil {
		e.GET("/health/db", healthFunc)
	}

	run.NewHandler(runSvc, bus, logger).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	document.NewHandler(docSvc, runSvc, logger).RegisterRoutes(apiV1)
	admin.NewHandler(adminSvc, cfg.AdminAPIKey).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("in_memory", inMemory).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
