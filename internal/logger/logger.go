package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// L is the process-wide logger. JSON lines on stdout.
var L = zerolog.New(os.Stdout).With().Timestamp().Logger()

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
