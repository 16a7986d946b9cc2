package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/config"
	"github.com/Phucdanghoc/File-store-sub000/internal/handler"
	"github.com/Phucdanghoc/File-store-sub000/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	roleAPI    = "api"
	roleWorker = "worker"
	roleAll    = "all"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "docflow - document storage and background processing",
		Long: `docflow stores documents in an object store with a metadata catalog
and runs archive and PDF jobs on a background worker pool.

Run the HTTP API, the workers, or both in one process:

  server api
  server worker
  server all

Apply the PostgreSQL schema before first use of the postgres backends:

  server migrate`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides LOG_LEVEL)")

	for _, role := range []struct {
		name, short string
	}{
		{roleAPI, "Serve the HTTP API"},
		{roleWorker, "Consume jobs from the queue"},
		{roleAll, "Serve the HTTP API and consume jobs"},
	} {
		rootCmd.AddCommand(&cobra.Command{
			Use:   role.name,
			Short: role.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), role.name)
			},
		})
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	})
	return rootCmd
}

// loadConfig reads .env, then the config file and environment.
func loadConfig() (*config.AppConfig, *logger.AppLogger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: .env file could not be loaded: %v\n", err)
	}
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout), nil
}

func runMigrate(ctx context.Context) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	container, err := config.NewContainer(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer container.Close(context.Background())
	return container.Migrate(ctx)
}

func run(parent context.Context, role string) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := config.NewContainer(ctx, cfg, appLogger)
	if err != nil {
		return err
	}

	serveAPI := role == roleAPI || role == roleAll
	runWorkers := role == roleWorker || role == roleAll
	if serveAPI && container.AuthService == nil {
		_ = container.Close(context.Background())
		return fmt.Errorf("api: no authentication configured (set AUTH_STATIC_TOKENS or SUPABASE_URL)")
	}

	g, gctx := errgroup.WithContext(ctx)
	container.Scheduler.Start(gctx)

	var server *http.Server
	if serveAPI {
		server = &http.Server{
			Addr:              ":" + cfg.GetServerPort(),
			Handler:           newRouter(container),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			appLogger.Info("Server listening", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	if runWorkers {
		g.Go(func() error {
			return container.Pool.Run(gctx)
		})
	}

	<-gctx.Done()
	appLogger.Info("Shutting down", "role", role)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := container.Scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		appLogger.Error("Shutdown finished with errors", err)
		return err
	}
	appLogger.Info("Server exited")
	return nil
}

func newRouter(c *config.Container) http.Handler {
	authMiddleware := handler.NewAuthMiddleware(c.AuthService, c.Logger)
	limiter := handler.NewSubmitLimiter(c.Config.SubmitRate, c.Config.SubmitBurst)

	return handler.NewRouter(handler.Routes{
		Auth:           handler.NewAuthHandler(),
		Documents:      handler.NewDocumentHandler(c.Coordinator, c.Config.GetMaxFileSize(), c.Logger),
		Jobs:           handler.NewJobHandler(c.Coordinator, c.Logger),
		AuthMiddleware: authMiddleware.Middleware,
		SubmitLimiter:  limiter.Middleware,
		AllowedOrigins: c.Config.AllowedOrigins,
	})
}
