// Package logging provides the structured logger shared by all three
// binaries, following the zerolog setup used by the ad-exchange bidder's
// pkg/logger package. There is no global instance: each New call builds its
// own logger and tags it with a component field via .With().
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a component-scoped zerolog.Logger. level/format come from
// config.Config.LogLevel / LogFormat.
func New(component, level, format string) zerolog.Logger {
	var output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var base zerolog.Logger
	if format == "console" {
		base = zerolog.New(output)
	} else {
		base = zerolog.New(os.Stdout)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return base.Level(lvl).With().
		Timestamp().
		Str("component", component).
		Logger()
}
