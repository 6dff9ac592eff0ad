package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTP relays envelopes to an upstream SMTP server.
type SMTP struct {
	name     string
	addr     string
	host     string
	tlsMode  string
	username string
	password string
	helo     string
	timeout  time.Duration
}

// NewSMTP creates an SMTP provider from a validated Config.
func NewSMTP(cfg Config) *SMTP {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host = cfg.Addr
	}
	return &SMTP{
		name:     cfg.Name,
		addr:     cfg.Addr,
		host:     host,
		tlsMode:  cfg.TLSMode,
		username: cfg.Username,
		password: cfg.Password,
		helo:     cfg.HeloName,
		timeout:  cfg.Timeout,
	}
}

func (s *SMTP) Name() string { return s.name }

// Send opens a session, authenticates with PLAIN when credentials are set,
// and submits env. Failures are returned as *ProviderError.
func (s *SMTP) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	c, err := s.dial(ctx)
	if err != nil {
		return nil, ClassifySMTPError(s.name, err)
	}
	defer c.Close()

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return nil, ClassifySMTPError(s.name, fmt.Errorf("auth: %w", err))
		}
	}

	if err := c.SendMail(env.From, env.To, bytes.NewReader(env.Bytes())); err != nil {
		return nil, ClassifySMTPError(s.name, err)
	}

	if err := c.Quit(); err != nil {
		return nil, ClassifySMTPError(s.name, fmt.Errorf("quit: %w", err))
	}

	return &Receipt{
		ProviderMessageID: env.MessageID,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr},
	}, nil
}

// HealthCheck opens and closes a session with the relay.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return ClassifySMTPError(s.name, err)
	}
	defer c.Close()
	return c.Quit()
}

func (s *SMTP) dial(ctx context.Context) (*gosmtp.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tlsConfig := &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if s.tlsMode == "tls" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", s.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	c := gosmtp.NewClient(conn)
	if s.helo != "" {
		if err := c.Hello(s.helo); err != nil {
			c.Close()
			return nil, fmt.Errorf("helo: %w", err)
		}
	}
	if s.tlsMode == "starttls" {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return c, nil
}
