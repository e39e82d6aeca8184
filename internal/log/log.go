// Package log holds the process-wide structured logger.
package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Log writes to stderr. Decoding packages default to a disabled logger
// and only use this one when it is handed to them.
var Log zerolog.Logger

func SetLevelDebug() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func SetLevelInfo() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// SetConsole switches Log to human-readable output.
func SetConsole(noColor bool) {
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}).With().Timestamp().Logger()
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	Log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	SetLevelInfo()
}
