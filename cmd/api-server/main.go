package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sungwon/mailqueue/internal/api"
	"github.com/sungwon/mailqueue/internal/auth"
	"github.com/sungwon/mailqueue/internal/config"
	"github.com/sungwon/mailqueue/internal/dispatch"
	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/metrics"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/storage"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging.Logger())
	log.Info().Msg("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connection established")

	backend, err := queue.NewBackend(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue backend")
	}
	defer backend.Close() //nolint:errcheck

	bodies, err := msgstore.New(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create body store")
	}

	messages := storage.NewMessages(db, log)
	trigger := dispatch.NewTrigger(backend.Enqueuer, log).WithChannel(backend.Channel())
	messages.OnCommit(trigger.Dispatch)

	keys := auth.NewKeySet(cfg.API.APIKeyHashes)
	if !keys.Enabled() {
		log.Warn().Msg("no API keys configured; /api/v1 is unauthenticated")
	}

	router := api.NewRouter(api.RouterConfig{
		Messages:    messages,
		Bodies:      bodies,
		InlineLimit: cfg.Store.InlineLimit,
		States:      backend.States,
		DLQ:         backend.DLQ,
		Channel:     backend.Channel(),
		APIKeys:     keys,
		Checks: []api.ReadinessCheck{
			{Name: "database", Ping: db.Ping},
			{Name: "queue", Ping: backend.Ping},
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return metrics.NewSampler(db, backend, 0, log).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
