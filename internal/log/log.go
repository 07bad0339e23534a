// Package log configures the process logger and hands out component-scoped
// entries. Everything is backed by logrus' standard logger.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls how Setup configures the standard logger.
type Options struct {
	Enabled bool
	Level   string
	JSON    bool
	Output  io.Writer
}

// Setup applies opts to the standard logrus logger. An unknown level falls
// back to info. When logging is disabled all output is discarded.
func Setup(opts Options) {
	if !opts.Enabled {
		logrus.SetOutput(io.Discard)
		return
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)

	if opts.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
