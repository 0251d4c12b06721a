package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/chaz8081/media2text/internal/config"
)

// newLogger writes human-readable lines to w, coloured only on a terminal.
func newLogger(w io.Writer, level string) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !shouldColorize(w),
		TimeFormat: time.TimeOnly,
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(config.ParseLogLevel(level))
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
