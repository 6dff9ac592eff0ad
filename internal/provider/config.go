package provider

import (
	"errors"
	"time"
)

// Config describes one provider instance.
type Config struct {
	// Name is the server name records select the provider by. It defaults
	// to Type.
	Name string `mapstructure:"name"`
	// Type is one of "smtp", "stdout", "file".
	Type string `mapstructure:"type"`

	// SMTP relay settings.
	Addr     string `mapstructure:"addr"`
	TLSMode  string `mapstructure:"tls_mode"` // starttls (default), tls, none
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	HeloName string `mapstructure:"helo_name"`

	// OutputDir is where the file provider writes .eml files.
	OutputDir string `mapstructure:"output_dir"`

	Timeout time.Duration `mapstructure:"timeout"`
}

const defaultTimeout = 30 * time.Second

// Validate checks required fields for the provider type and fills defaults.
func (c *Config) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}
	if c.Name == "" {
		c.Name = c.Type
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "smtp":
		if c.Addr == "" {
			return errors.New("smtp: addr is required")
		}
		switch c.TLSMode {
		case "":
			c.TLSMode = "starttls"
		case "starttls", "tls", "none":
		default:
			return errors.New("smtp: unknown tls_mode " + c.TLSMode)
		}
		if c.Username != "" && c.Password == "" {
			return errors.New("smtp: password is required with username")
		}
	case "stdout":
	case "file":
		if c.OutputDir == "" {
			c.OutputDir = defaultOutputDir
		}
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
