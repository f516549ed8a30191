// logger.go - Global zerolog setup

package common

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global logger. format is "json", "console" or
// "auto" (console when stderr is a terminal).
func InitLogger(level, format string) zerolog.Logger {
	logger := NewLogger(os.Stderr, level, format)
	log.Logger = logger
	return logger
}

// NewLogger builds a logger writing to w.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	writer := w
	switch strings.ToLower(format) {
	case "console", "pretty":
		writer = consoleWriter(w)
	case "auto", "":
		if isTerminal(w) {
			writer = consoleWriter(w)
		}
	}

	logger := zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	if lvl <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
