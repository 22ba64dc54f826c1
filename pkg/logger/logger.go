package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It starts as a no-op so packages that log
// before Init (tests, tools) stay quiet.
var Log = zerolog.Nop()

// Init initializes the global logger
func Init(env string) {
	Log = New(env, os.Stdout)
}

// New builds a logger for env writing to out. Development gets the pretty
// console writer, everything else JSON.
func New(env string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Caller().
			Logger()
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Logger()
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// Helper functions for common log levels
func Info() *zerolog.Event {
	return Log.Info()
}

func Error() *zerolog.Event {
	return Log.Error()
}

func Warn() *zerolog.Event {
	return Log.Warn()
}

func Debug() *zerolog.Event {
	return Log.Debug()
}

func Fatal() *zerolog.Event {
	return Log.Fatal()
}
