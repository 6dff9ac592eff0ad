package provider

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnvelope_Bytes(t *testing.T) {
	env := &Envelope{
		MessageID: "m-1",
		From:      "a@example.com",
		To:        []string{"b@example.com", "c@example.com"},
		Subject:   "Hi",
		Headers:   map[string]string{"X-B": "2", "X-A": "1"},
		Body:      []byte("body"),
	}

	got := string(env.Bytes())
	want := "From: a@example.com\r\n" +
		"To: b@example.com, c@example.com\r\n" +
		"Subject: Hi\r\n" +
		"Message-ID: <m-1@mailqueue>\r\n" +
		"X-A: 1\r\n" +
		"X-B: 2\r\n" +
		"\r\n" +
		"body"
	if got != want {
		t.Errorf("Bytes() =\n%q\nwant\n%q", got, want)
	}
}

func TestEnvelope_Bytes_KeepsExplicitMessageID(t *testing.T) {
	env := &Envelope{MessageID: "m-1", Headers: map[string]string{"Message-ID": "<orig@host>"}}
	got := string(env.Bytes())
	if strings.Count(got, "Message-ID") != 1 || !strings.Contains(got, "<orig@host>") {
		t.Errorf("Bytes() = %q, want only the explicit Message-ID", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing type", Config{}, true},
		{"unknown type", Config{Type: "sendgrid"}, true},
		{"stdout", Config{Type: "stdout"}, false},
		{"file defaults dir", Config{Type: "file"}, false},
		{"smtp without addr", Config{Type: "smtp"}, true},
		{"smtp bad tls mode", Config{Type: "smtp", Addr: "relay:25", TLSMode: "ssl"}, true},
		{"smtp username without password", Config{Type: "smtp", Addr: "relay:25", Username: "u"}, true},
		{"smtp ok", Config{Type: "smtp", Addr: "relay:587", Username: "u", Password: "p"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg := Config{Type: "smtp", Addr: "relay:25"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Name != "smtp" {
		t.Errorf("Name = %q, want smtp", cfg.Name)
	}
	if cfg.TLSMode != "starttls" {
		t.Errorf("TLSMode = %q, want starttls", cfg.TLSMode)
	}
	if cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, defaultTimeout)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	reg, err := NewRegistryFromConfig([]Config{
		{Type: "stdout", Name: "local"},
		{Type: "file", Name: "archive", OutputDir: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig() error = %v", err)
	}

	p, err := reg.Resolve("")
	if err != nil || p.Name() != "local" {
		t.Errorf("Resolve(\"\") = %v, %v; want default local", p, err)
	}

	p, err = reg.Resolve("archive")
	if err != nil || p.Name() != "archive" {
		t.Errorf("Resolve(archive) = %v, %v", p, err)
	}

	_, err = reg.Resolve("missing")
	if !IsPermanent(err) {
		t.Errorf("Resolve(missing) error = %v, want permanent ProviderError", err)
	}

	if got := reg.Names(); len(got) != 2 || got[0] != "archive" {
		t.Errorf("Names() = %v", got)
	}
}

func TestNewRegistryFromConfig_Empty(t *testing.T) {
	if _, err := NewRegistryFromConfig(nil); err == nil {
		t.Error("expected error for empty provider list")
	}
}

func TestStdout_Send(t *testing.T) {
	var buf bytes.Buffer
	p := &Stdout{name: "stdout", writer: &buf}

	receipt, err := p.Send(context.Background(), &Envelope{MessageID: "m-9", Subject: "Hello", Body: []byte("abc")})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if receipt.ProviderMessageID != "stdout-m-9" {
		t.Errorf("ProviderMessageID = %q", receipt.ProviderMessageID)
	}
	if !strings.Contains(buf.String(), "Subject: Hello") || !strings.Contains(buf.String(), "(3 bytes)") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFile_Send(t *testing.T) {
	dir := t.TempDir()
	p := NewFile(Config{Name: "file", OutputDir: dir})

	receipt, err := p.Send(context.Background(), &Envelope{MessageID: "m-2", From: "a@example.com", Body: []byte("hi")})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	path := receipt.Metadata["path"]
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q, want inside %q", path, dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(string(data), "\r\n\r\nhi") {
		t.Errorf("file content = %q", data)
	}
}

func TestProviderError(t *testing.T) {
	base := errors.New("connection reset")
	pe := ClassifySMTPError("relay", base)

	if pe.Permanent {
		t.Error("network error classified as permanent")
	}
	if !errors.Is(pe, base) {
		t.Error("ProviderError should unwrap to the cause")
	}
	if ClassifySMTPError("relay", nil) != nil {
		t.Error("nil error should classify to nil")
	}
}
