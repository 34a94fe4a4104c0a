// Package logger configures the process-wide logrus logger for the dsconv
// command.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Options controls logger initialization.
type Options struct {
	// Debug turns on debug level; the default level is info.
	Debug bool
	// DisableColor turns off level colors, e.g. when output is not a terminal.
	DisableColor bool
	// Output defaults to stderr.
	Output io.Writer
}

// Init applies opts to the standard logrus logger.
func Init(opts Options) {
	if opts.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)

	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors:   opts.DisableColor,
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})
}
