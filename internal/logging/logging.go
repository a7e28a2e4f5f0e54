// Package logging builds the daemon's logr.Logger on top of zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the named level (debug, info, warn,
// error). debug enables V(1) messages. A terminal gets console output,
// anything else gets JSON lines.
func New(w io.Writer, level string) logr.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
	zerologr.SetMaxV(1)

	zl := zerolog.New(w)
	if isTerminal(w) {
		zl = zl.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}
	zl = zl.Level(parseLevel(level)).With().Timestamp().Logger()
	return zerologr.New(&zl)
}

// Stderr is New(os.Stderr, level).
func Stderr(level string) logr.Logger {
	return New(os.Stderr, level)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
