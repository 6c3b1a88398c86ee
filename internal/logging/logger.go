// Package logging configures zerolog for the web-ocr server.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options holds logger configuration.
type Options struct {
	Level   string
	Format  string // "json" or "console"
	Output  io.Writer
	Service string
}

// New creates a zerolog.Logger with the given options.
func New(opts Options) zerolog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if opts.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		})
	} else {
		zl = zerolog.New(output)
	}

	zl = zl.Level(parseLevel(opts.Level)).With().
		Timestamp().
		Str("service", opts.Service).
		Logger()

	return zl
}

// Default returns a logger with development settings.
func Default() zerolog.Logger {
	return New(Options{Level: "debug", Format: "console", Service: "web-ocr"})
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
