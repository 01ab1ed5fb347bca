// Package logger builds the process-wide zerolog logger. Components receive
// it by injection rather than through the context.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Console output is the default;
// jsonLog switches to structured output for machine consumption.
func NewLogger(logLevel string, jsonLog bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var log zerolog.Logger
	if jsonLog {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
		log = zerolog.New(output).With().Timestamp().Logger()
	}
	return &log
}
