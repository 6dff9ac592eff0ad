package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Stdout prints envelopes instead of delivering them. Development only.
type Stdout struct {
	name   string
	writer io.Writer
}

// NewStdout creates a Stdout provider writing to os.Stdout.
func NewStdout(cfg Config) *Stdout {
	return &Stdout{name: cfg.Name, writer: os.Stdout}
}

func (s *Stdout) Name() string { return s.name }

// Send prints a summary of env and reports it accepted.
func (s *Stdout) Send(_ context.Context, env *Envelope) (*Receipt, error) {
	var b strings.Builder
	b.WriteString("--- stdout provider: message ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", env.MessageID)
	fmt.Fprintf(&b, "From:    %s\n", env.From)
	fmt.Fprintf(&b, "To:      %s\n", strings.Join(env.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", env.Subject)
	fmt.Fprintf(&b, "Body:    (%d bytes)\n", len(env.Body))
	b.WriteString("--- end ---\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return nil, ClassifySMTPError(s.name, fmt.Errorf("write: %w", err))
	}

	return &Receipt{
		ProviderMessageID: "stdout-" + env.MessageID,
		Timestamp:         time.Now(),
	}, nil
}

func (s *Stdout) HealthCheck(context.Context) error { return nil }
