package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New создает zerolog-логгер: debug в dev, info в остальных окружениях.
func New(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "zenith-bot").Logger().Level(level)
}
