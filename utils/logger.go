package utils

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileOptions configures the rotating log file behind NewLogger
type LogFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger returns a stdlib logger that writes to stdout and, when a path is
// configured, to a size-rotated file.
func NewLogger(prefix string, opts LogFileOptions) *log.Logger {
	var w io.Writer = os.Stdout
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err == nil {
			w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   opts.Path,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   opts.Compress,
				LocalTime:  false,
			})
		}
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds|log.LUTC)
}
