package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/auth"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/queue"
)

// RouterConfig carries the dependencies of the HTTP API.
type RouterConfig struct {
	Messages MessageStore
	// Bodies stores bodies larger than InlineLimit bytes. Nil keeps every
	// body inline.
	Bodies      msgstore.BodyStore
	InlineLimit int
	// States and DLQ are optional; their endpoints are not registered when
	// nil.
	States  queue.StateStore
	DLQ     queue.DeadLetterQueue
	Channel string
	// APIKeys guards /api/v1. Nil or empty leaves it open.
	APIKeys *auth.KeySet
	Checks  []ReadinessCheck
	Log     zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware(cfg.Log))
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(cfg.Checks...))
	r.Handle("/metrics", promhttp.Handler())

	bodies := bodyOffloader{store: cfg.Bodies, limit: cfg.InlineLimit}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.APIKeys != nil {
			r.Use(auth.BearerAuth(cfg.APIKeys))
		}

		r.Post("/messages", CreateMessageHandler(cfg.Messages, bodies))
		r.Post("/messages/batch", CreateMessagesHandler(cfg.Messages, bodies))
		r.Get("/messages", ListMessagesHandler(cfg.Messages))
		r.Patch("/messages", UpdateMessagesHandler(cfg.Messages, bodies))
		r.Get("/messages/{id}", GetMessageHandler(cfg.Messages))
		r.Patch("/messages/{id}", UpdateMessageHandler(cfg.Messages, bodies))
		r.Delete("/messages/{id}", DeleteMessageHandler(cfg.Messages, bodies))

		if cfg.States != nil {
			r.Get("/tasks/{id}", TaskStatusHandler(cfg.States))
		}
		if cfg.DLQ != nil {
			r.Post("/dlq/reprocess", DLQReprocessHandler(cfg.DLQ, cfg.Channel))
		}
	})

	return r
}
