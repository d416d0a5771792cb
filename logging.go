package main

import (
	"io"
	"log/slog"
	"os"
)

// newLogger writes text records to stderr, keeping stdout for the console UI.
func newLogger(debug bool) *slog.Logger {
	return newLoggerTo(os.Stderr, debug)
}

func newLoggerTo(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}
