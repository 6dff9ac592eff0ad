package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/mailqueue/internal/config"
	"github.com/sungwon/mailqueue/internal/delivery"
	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/metrics"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/provider"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/sender"
	"github.com/sungwon/mailqueue/internal/storage"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging.Logger())
	log.Info().Msg("starting queue worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	registry, err := provider.NewRegistryFromConfig(cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create providers")
	}
	for _, p := range registry.All() {
		if err := p.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Str("provider", p.Name()).Msg("provider health check failed")
		}
	}

	bodies, err := msgstore.New(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create body store")
	}

	backend, err := queue.NewBackend(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue backend")
	}
	defer backend.Close() //nolint:errcheck
	if err := backend.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to queue backend")
	}

	messages := storage.NewMessages(db, log)
	mailer := delivery.NewService(registry, bodies, log)
	guard := sender.NewGuard(messages, mailer, log)
	dequeuer := backend.NewDequeuer(sender.NewTaskHandler(guard))

	if err := dequeuer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start dequeuer")
	}
	log.Info().
		Int("workers", cfg.Queue.WorkerCount).
		Str("channel", backend.Channel()).
		Strs("providers", registry.Names()).
		Msg("queue worker started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.NewSampler(db, backend, 0, log).Run(gctx)
	})

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down queue worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
		defer cancel()
		return dequeuer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("queue worker stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("queue worker stopped")
}
