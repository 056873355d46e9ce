package util

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// GetLogger returns a colored logger for development and a JSON logger when
// gin runs in release mode, and installs it as the slog default.
func GetLogger(level slog.Leveler, ginMode string) *slog.Logger {
	var handler slog.Handler
	if ginMode == "release" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
