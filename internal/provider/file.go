package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultOutputDir = "./mail_output"

// File writes each envelope to <output_dir>/<timestamp>_<message-id>.eml.
// Development only.
type File struct {
	name      string
	outputDir string
}

// NewFile creates a File provider for cfg.OutputDir.
func NewFile(cfg Config) *File {
	dir := cfg.OutputDir
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{name: cfg.Name, outputDir: dir}
}

func (f *File) Name() string { return f.name }

func (f *File) Send(_ context.Context, env *Envelope) (*Receipt, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return nil, ClassifySMTPError(f.name, fmt.Errorf("create output dir: %w", err))
	}

	name := fmt.Sprintf("%s_%s.eml", time.Now().Format("20060102_150405"), filepath.Base(env.MessageID))
	path := filepath.Join(f.outputDir, name)

	if err := os.WriteFile(path, env.Bytes(), 0o640); err != nil {
		return nil, ClassifySMTPError(f.name, fmt.Errorf("write %s: %w", path, err))
	}

	return &Receipt{
		ProviderMessageID: "file-" + env.MessageID,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"path": path},
	}, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return nil
}
