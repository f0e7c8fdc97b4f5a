// Package logging configures zerolog and provides the gin request logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. format "json" writes one JSON
// object per line; anything else uses the human-readable console writer.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(out io.Writer, level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	w := out
	if strings.ToLower(format) != "json" {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = out
			cw.TimeFormat = time.RFC3339
		})
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	// Code that logs through log.Ctx without a request logger still gets output.
	zerolog.DefaultContextLogger = &log.Logger
}
