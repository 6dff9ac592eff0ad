// Package delivery is the send subsystem: it transmits one message record
// through its provider inside a unit of work and records the result on the
// record.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/mail"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/provider"
)

// bodyRetryBackoff defines the waits between body store read attempts.
var bodyRetryBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// providerResolver resolves the provider for a record's server name.
type providerResolver interface {
	Resolve(server string) (provider.Provider, error)
}

// Service sends message records. It satisfies sender.Mailer.
type Service struct {
	resolver providerResolver
	bodies   msgstore.BodyStore
	backoff  []time.Duration
	log      zerolog.Logger
}

// NewService creates a Service. bodies may be nil when every record keeps
// its body inline.
func NewService(resolver providerResolver, bodies msgstore.BodyStore, log zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		bodies:   bodies,
		backoff:  bodyRetryBackoff,
		log:      log,
	}
}

// Send transmits record id using tx. On success the record moves to sent.
// On failure the record moves to exception with the failure reason, unless
// opts.PropagateErrors is set, in which case the error is returned and the
// record is left for the caller to roll back. tx is committed only when
// opts.DeferCommit is false.
func (s *Service) Send(ctx context.Context, tx mail.Tx, id uuid.UUID, opts mail.SendOptions) error {
	log := s.log.With().Stringer("message_id", id).Logger()

	msg, err := tx.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get message %s: %w", id, err)
	}

	providerName, sendErr := s.deliver(ctx, &msg, log)
	if sendErr != nil {
		SendsTotal.WithLabelValues(providerLabel(providerName), "failed").Inc()
		if opts.PropagateErrors {
			return sendErr
		}
		log.Warn().Err(sendErr).Msg("recording delivery failure on message")
		if err := tx.SetStatus(ctx, id, mail.StatusException, sendErr.Error()); err != nil {
			return fmt.Errorf("set exception status: %w", err)
		}
		return s.finish(ctx, tx, opts)
	}

	SendsTotal.WithLabelValues(providerName, "sent").Inc()
	if err := tx.SetStatus(ctx, id, mail.StatusSent, ""); err != nil {
		return fmt.Errorf("set sent status: %w", err)
	}
	return s.finish(ctx, tx, opts)
}

// deliver resolves the provider for msg and transmits it. It returns the
// provider name when one was resolved.
func (s *Service) deliver(ctx context.Context, msg *mail.Message, log zerolog.Logger) (string, error) {
	body := msg.Body
	if msg.BodyRef != "" {
		var err error
		body, err = s.fetchBodyWithRetry(ctx, msg.BodyRef, log)
		if err != nil {
			return "", fmt.Errorf("fetch body %s: %w", msg.BodyRef, err)
		}
	}

	p, err := s.resolver.Resolve(msg.Server)
	if err != nil {
		log.Error().Err(err).Str("server", msg.Server).Msg("failed to resolve provider")
		return "", fmt.Errorf("resolve provider: %w", err)
	}
	name := p.Name()

	env := &provider.Envelope{
		MessageID: msg.ID.String(),
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		Headers:   msg.Headers,
		Body:      body,
	}

	start := time.Now()
	receipt, err := p.Send(ctx, env)
	elapsed := time.Since(start)
	SendDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		log.Error().Err(err).Str("provider", name).Msg("provider send failed")
		return name, fmt.Errorf("provider send: %w", err)
	}

	log.Info().
		Str("provider", name).
		Str("provider_message_id", receipt.ProviderMessageID).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("message delivered")
	return name, nil
}

func (s *Service) finish(ctx context.Context, tx mail.Tx, opts mail.SendOptions) error {
	if opts.DeferCommit {
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// fetchBodyWithRetry reads a stored body, retrying transient failures with
// backoff. A missing body is not retried.
func (s *Service) fetchBodyWithRetry(ctx context.Context, ref string, log zerolog.Logger) ([]byte, error) {
	if s.bodies == nil {
		return nil, &provider.ProviderError{
			Provider:  "msgstore",
			Message:   "no body store configured for body " + ref,
			Permanent: true,
		}
	}

	var lastErr error

	for attempt, delay := range s.backoff {
		data, err := s.bodies.Get(ctx, ref)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, msgstore.ErrNotFound) {
			return nil, &provider.ProviderError{
				Provider:  "msgstore",
				Message:   "body " + ref + " not found",
				Permanent: true,
				Err:       err,
			}
		}
		lastErr = err
		log.Warn().Err(err).
			Str("body_ref", ref).
			Int("attempt", attempt+1).
			Int("max_attempts", len(s.backoff)).
			Msg("body read failed")

		if attempt == len(s.backoff)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", len(s.backoff), lastErr)
}

func providerLabel(name string) string {
	if name == "" {
		return "none"
	}
	return name
}
