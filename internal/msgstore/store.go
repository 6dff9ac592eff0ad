// Package msgstore keeps message bodies that are too large to live in the
// record row. Records point at a stored body through their body_ref.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested body does not exist.
var ErrNotFound = errors.New("msgstore: body not found")

// BodyStore stores opaque message bodies by reference.
type BodyStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Config holds configuration for creating a BodyStore.
type Config struct {
	Type string `mapstructure:"type"` // "local" (default) or "s3"
	Path string `mapstructure:"path"` // base directory for the local store
	// InlineLimit is the body size in bytes above which the API offloads
	// bodies to the store. Zero keeps every body inline.
	InlineLimit int    `mapstructure:"inline_limit"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
}

// New creates the BodyStore selected by cfg.Type. An empty type selects the
// local store.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (BodyStore, error) {
	switch cfg.Type {
	case "local", "":
		if cfg.Path == "" {
			cfg.Path = "./data/bodies"
		}
		log.Debug().Str("path", cfg.Path).Msg("using local body store")
		return NewLocalFileStore(cfg.Path)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("msgstore: s3_bucket is required")
		}
		log.Debug().Str("bucket", cfg.S3Bucket).Str("prefix", cfg.S3Prefix).Msg("using s3 body store")
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("msgstore: unsupported store type %q", cfg.Type)
	}
}

// validRef rejects references that could escape the store's namespace.
func validRef(ref string) error {
	if ref == "" || strings.Contains(ref, "..") || strings.ContainsAny(ref, `/\`) {
		return fmt.Errorf("msgstore: invalid body ref %q", ref)
	}
	return nil
}
