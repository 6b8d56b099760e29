package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "hsk-backend"

// Setup builds the root logger every component derives its sub-logger from.
// format "pretty" gives human-readable console output for development; any
// other value emits JSON lines. An unparseable level falls back to info.
func Setup(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(writerFor(format)).
		With().
		Timestamp().
		Caller().
		Str("service", serviceName).
		Logger()
}

func writerFor(format string) io.Writer {
	if format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	return os.Stdout
}
