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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/config"
	logpkg "github.com/kailas-cloud/aegis/internal/logger"
	"github.com/kailas-cloud/aegis/internal/metrics"
	chiTransport "github.com/kailas-cloud/aegis/internal/transport/chi"
	"github.com/kailas-cloud/aegis/internal/usecase/health"
	"github.com/kailas-cloud/aegis/internal/usecase/pipeline"
	"github.com/kailas-cloud/aegis/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	env   string
	level string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "aegis",
		Short:        "Trust-gated retrieval over a local security knowledge base",
		Version:      version.String(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.env, "env", config.GetEnv(), "config environment (local, dev, prod)")
	root.PersistentFlags().StringVar(&flags.level, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags),
		newCheckCmd(flags),
		newScanCmd(flags),
		newIndexCmd(flags),
	)
	return root
}

// bootstrap loads configuration and builds the logger. The returned app must be closed.
func (f *rootFlags) bootstrap() (*app, error) {
	cfg, err := config.Load(f.env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if f.level != "" {
		level = f.level
	}
	logger, err := logpkg.NewLogger(f.env, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.Register()

	a := newApp(cfg, logger)
	a.onClose(func() { _ = logger.Sync() })
	return a, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a, flags.env)
		},
	}
}

func serve(ctx context.Context, a *app, env string) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Starting aegis API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_store", cfg.VectorStore.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	// Nothing is dialed before the boundary check passes.
	if err := a.checkSovereignty(); err != nil {
		logger.Error("Refusing to start", zap.Error(err))
		return err
	}

	scanner, err := a.Scanner()
	if err != nil {
		return err
	}
	stack, err := a.Retrieval(ctx)
	if err != nil {
		return err
	}

	svc := pipeline.New(scanner, stack.engine, logger)
	healthSvc := health.New(stack.store, stack.embedding, stack.llm, a.recognizer)

	server := chiTransport.NewServer(svc, scanner, stack.engine, healthSvc, logger)
	handler := server.Router(chiTransport.Options{
		APIKeys:   cfg.Auth.APIKeys,
		RateLimit: chiTransport.NewRateLimiter(cfg.RateLimit.AIRequestsPerMinute, cfg.RateLimit.Burst),
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
