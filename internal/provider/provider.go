// Package provider holds the outbound mail transports a message record can
// be sent through, selected by the record's server name.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider transmits one envelope.
type Provider interface {
	Send(ctx context.Context, env *Envelope) (*Receipt, error)
	// Name returns the server name records use to select this provider.
	Name() string
	HealthCheck(ctx context.Context) error
}

// Envelope is the transport view of a message record.
type Envelope struct {
	MessageID string
	From      string
	To        []string
	Subject   string
	Headers   map[string]string
	Body      []byte
}

// Receipt describes an accepted transmission.
type Receipt struct {
	ProviderMessageID string
	Timestamp         time.Time
	Metadata          map[string]string
}

// Bytes renders the envelope as an RFC 5322 message with CRLF line endings.
// Extra headers are written in name order after the standard ones.
func (e *Envelope) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	if _, ok := e.Headers["Message-ID"]; !ok && e.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: <%s@mailqueue>\r\n", e.MessageID)
	}

	names := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", k, e.Headers[k])
	}

	b.WriteString("\r\n")
	b.Write(e.Body)
	return []byte(b.String())
}
