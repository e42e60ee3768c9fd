// Package logging sets up the process-wide structured logger, leveled by
// APP_LOG_LEVEL and quiet by default on the hot request path.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger from a level name ("debug", "info", "warn",
// "error"); unknown or empty levels fall back to "info".
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
