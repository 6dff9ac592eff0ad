// Package sender runs the body of a send task: it takes a non-blocking
// exclusive lock on one message record, re-checks the record, and hands it
// to the send subsystem inside the same unit of work.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/mail"
)

// Mailer transmits one record inside an open unit of work.
type Mailer interface {
	Send(ctx context.Context, tx mail.Tx, id uuid.UUID, opts mail.SendOptions) error
}

// Guard executes guarded sends. It holds no in-memory locks; mutual
// exclusion comes from the record store's row lock, so guards in separate
// processes are safe.
type Guard struct {
	store  mail.TxBeginner
	mailer Mailer
	log    zerolog.Logger
	tracer trace.Tracer
}

// NewGuard creates a Guard over store and mailer.
func NewGuard(store mail.TxBeginner, mailer Mailer, log zerolog.Logger) *Guard {
	return &Guard{
		store:  store,
		mailer: mailer,
		log:    log,
		tracer: otel.Tracer("mailqueue/sender"),
	}
}

// Run attempts to send the record identified by id.
//
// Lock contention, a deleted record and a record no longer outgoing are
// reported through Result with a nil error. Errors from the send subsystem
// and from the record store are returned unchanged in meaning and the unit
// of work is rolled back.
func (g *Guard) Run(ctx context.Context, id uuid.UUID) (res Result, err error) {
	ctx, span := g.tracer.Start(ctx, "sender.guarded_send", trace.WithAttributes(
		attribute.String("message_id", id.String()),
	))
	start := time.Now()
	defer func() {
		label := res.Outcome.String()
		if err != nil {
			label = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "guarded send failed")
		}
		span.SetAttributes(attribute.String("outcome", label))
		span.End()
		OutcomesTotal.WithLabelValues(label).Inc()
		GuardDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	log := logger.FromContext(logger.WithLogger(ctx, g.log)).With().Str("message_id", id.String()).Logger()
	res = Result{MessageID: id}

	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	locked, err := tx.TryLock(ctx, id)
	if err != nil {
		return res, fmt.Errorf("lock message %s: %w", id, err)
	}
	if !locked {
		res.Outcome = OutcomeLockDenied
		log.Info().Msg(res.String())
		return res, nil
	}

	exists, err := tx.Exists(ctx, id)
	if err != nil {
		return res, fmt.Errorf("check message %s: %w", id, err)
	}
	if !exists {
		res.Outcome = OutcomeGone
		log.Info().Msg(res.String())
		return res, nil
	}

	status, err := tx.Status(ctx, id)
	if err != nil {
		if errors.Is(err, mail.ErrNotFound) {
			res.Outcome = OutcomeGone
			log.Info().Msg(res.String())
			return res, nil
		}
		return res, fmt.Errorf("read status of message %s: %w", id, err)
	}
	if status != mail.StatusOutgoing {
		res.Outcome = OutcomeWrongStatus
		res.Status = status
		log.Info().Msg(res.String())
		return res, nil
	}

	if err := g.mailer.Send(ctx, tx, id, mail.SendOptions{PropagateErrors: true, DeferCommit: true}); err != nil {
		log.Error().Err(err).Msg("send failed")
		return res, fmt.Errorf("send message %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit send of message %s: %w", id, err)
	}

	res.Outcome = OutcomeSent
	log.Info().Dur("duration", time.Since(start)).Msg("message sent")
	return res, nil
}
