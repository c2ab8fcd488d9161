/*

This file contains the zerolog setup shared by the vault daemon and the
maintenance scripts: a console writer for interactive runs, an optional
append-only file sink selected with LOG_FILE, and per-component child
loggers so vault, pool, feed and web output can be filtered apart.

*/

package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the root logger every component logger derives from.
var Logger zerolog.Logger

// Initialize configures the root logger and the global level. Unknown or
// empty levels fall back to info. When LOG_FILE is set the daemon logs to
// that file in addition to the console.
func Initialize(logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}}
	if path := os.Getenv("LOG_FILE"); path != "" {
		if file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			writers = append(writers, file)
		}
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = Logger
}

// GetForComponent returns a child logger tagged with the component name.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
