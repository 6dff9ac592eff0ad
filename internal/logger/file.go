package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds configuration for rotating file output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int
}

// NewFileWriter returns a lumberjack writer that rotates by size and
// compresses rotated files.
func NewFileWriter(cfg FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}
