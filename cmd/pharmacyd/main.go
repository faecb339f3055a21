package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pharmcare/pharmcare/internal/config"
	"github.com/pharmcare/pharmcare/internal/domain/directory"
	"github.com/pharmcare/pharmcare/internal/domain/intervention"
	"github.com/pharmcare/pharmcare/internal/platform/audit"
	"github.com/pharmcare/pharmcare/internal/platform/auth"
	"github.com/pharmcare/pharmcare/internal/platform/db"
	"github.com/pharmcare/pharmcare/internal/platform/middleware"
	"github.com/pharmcare/pharmcare/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmacyd",
		Short: "Clinical intervention workflow server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, cfg.MigrationsDir).Status(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-30s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Stores
	repo := intervention.NewPGRepository(pool)
	patients := directory.NewPatientStorePG(pool)
	users := directory.NewUserStorePG(pool)
	recorder := audit.NewRecorder(audit.NewPGStore(pool), logger)

	// Notification transports. Either channel may be disabled by leaving its
	// address out of the config; the dispatcher handles nil senders.
	var email notify.EmailSender
	if cfg.SMTPHost != "" {
		email = &notify.SMTPEmailSender{Host: cfg.SMTPHost, Port: cfg.SMTPPort, From: cfg.SMTPFrom}
	} else {
		logger.Warn().Msg("SMTP_HOST not set; email notifications disabled")
	}
	var sms notify.SMSSender
	if cfg.SMSGatewayURL != "" {
		sms = &notify.HTTPSMSSender{GatewayURL: cfg.SMSGatewayURL}
	} else {
		logger.Warn().Msg("SMS_GATEWAY_URL not set; sms notifications disabled")
	}
	dispatcher := notify.NewDispatcher(email, sms, notify.NewTimerScheduler(), notify.Config{
		MaxAttempts: cfg.NotifyMaxAttempts,
		BackoffBase: time.Duration(cfg.NotifyRetryBaseSecs) * time.Second,
	}, logger)
	defer dispatcher.Stop()

	svc := intervention.NewService(repo, patients, users, recorder, dispatcher, logger)
	handler := intervention.NewHandler(svc, recorder, auth.StaticAuthorizer{})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/healthz", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "database unreachable",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Middleware([]byte(cfg.JWTSigningKey)))
	apiV1.Use(db.TenantMiddleware())
	handler.Register(apiV1)

	// Serve until interrupted, then drain in-flight requests.
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
