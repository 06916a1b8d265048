package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fhirnudge/nudge/internal/config"
	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/proxy"
	"github.com/fhirnudge/nudge/internal/domain/validation"
	"github.com/fhirnudge/nudge/internal/platform/auth"
	"github.com/fhirnudge/nudge/internal/platform/db"
	"github.com/fhirnudge/nudge/internal/platform/mcptools"
	"github.com/fhirnudge/nudge/internal/platform/middleware"
	"github.com/fhirnudge/nudge/internal/platform/openapi"
	"github.com/fhirnudge/nudge/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "nudge-proxy",
		Short:        "Guiding FHIR proxy for LLM agents",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer) zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the proxy as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			logger := newLogger(os.Stderr)
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.refresher.Refresh(ctx); err != nil {
				return fmt.Errorf("initial refresh: %w", err)
			}
			go a.refresher.Run(ctx, cfg.RefreshInterval)

			return server.ServeStdio(mcptools.NewServer(a.svc, version, logger))
		},
	}
}

func runServer() error {
	// Logger
	logger := newLogger(os.Stdout)

	// Config
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	// Metadata
	if _, err := a.refresher.Refresh(ctx); err != nil {
		logger.Fatal().Err(err).Str("upstream", cfg.FHIRServerURL).Msg("failed to load server metadata")
	}
	go a.refresher.Run(ctx, cfg.RefreshInterval)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = goJSONSerializer{}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	rateLimitCfg.Skipper = func(c echo.Context) bool {
		return strings.HasPrefix(c.Path(), "/health")
	}

	api := e.Group("", middleware.RateLimit(rateLimitCfg))
	admin := e.Group("/admin",
		auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.AdminJWTSecret)}),
		auth.RequireRole(auth.RoleAdmin),
	)
	handler := proxy.NewHandler(a.svc, a.store, a.refresher, logger)
	handler.RegisterRoutes(api, admin)
	e.HTTPErrorHandler = handler.HTTPErrorHandler(e.DefaultHTTPErrorHandler)
	openapi.NewGenerator(a.store, version, cfg.PublicURL).RegisterRoutes(api)

	// DB health check endpoint
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("upstream", cfg.FHIRServerURL).Msg("starting server")
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

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.HasDatabase() {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationsFS(dir))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(upCmd)

	// migrate status
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
			if !cfg.HasDatabase() {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Work with AIX error templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint <file>",
		Short: "Check a YAML template file without starting the proxy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lintTemplates(cmd.OutOrStdout(), args[0])
		},
	})
	return cmd
}

func lintTemplates(w io.Writer, path string) error {
	recs, err := aix.LoadRecordsFile(path)
	if err != nil {
		return err
	}
	reg, err := aix.NewRegistry(recs)
	if err != nil {
		return err
	}
	for _, rec := range reg.Records() {
		fmt.Fprintln(w, rec.String())
	}
	fmt.Fprintf(w, "%d template record(s) OK\n", reg.Len())
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <resource> [query]",
		Short: "Validate a search against the server's metadata without running it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr).Level(zerolog.WarnLevel)
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.refresher.Refresh(ctx); err != nil {
				return fmt.Errorf("load server metadata: %w", err)
			}

			query := ""
			if len(args) == 2 {
				query = strings.TrimPrefix(args[1], "?")
			}
			return runCheck(cmd.OutOrStdout(), a.svc, args[0], query)
		},
	}
}

// errRejected makes check exit non-zero after printing the error object.
var errRejected = errors.New("query rejected")

func runCheck(w io.Writer, svc *proxy.Service, resourceType, query string) error {
	params, err := validation.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("malformed query: %w", err)
	}
	res, err := svc.Check(resourceType, params)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintf(w, "OK: %s search would be forwarded\n", resourceType)
		if len(params) > 0 {
			fmt.Fprintln(w, validation.FormatQuery(params))
		}
		return nil
	}
	out, err := json.MarshalIndent(res.Error, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return errRejected
}
