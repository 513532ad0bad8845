// Package logging builds the daemon's logrus logger. There is no global
// instance: callers pass the returned logger to each component.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config selects level, format and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout, stderr or file
	File   string // path when Output is "file"
}

// New builds a logger from conf. The returned close function flushes and
// closes the log file, if any; it is safe to call when there is none.
func New(conf Config) (*logrus.Logger, func() error, error) {
	noop := func() error { return nil }
	if conf.Level == "" {
		conf.Level = "info"
	}
	if conf.Format == "" {
		conf.Format = "text"
	}
	if conf.Output == "" {
		conf.Output = "stderr"
	}

	log := logrus.New()

	lvl, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		return nil, noop, fmt.Errorf("logging: invalid level %q: %w", conf.Level, err)
	}
	log.SetLevel(lvl)

	switch conf.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	default:
		return nil, noop, fmt.Errorf("logging: invalid format %q: must be json or text", conf.Format)
	}

	closeFn := noop
	switch conf.Output {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "stderr":
		log.SetOutput(os.Stderr)
	case "file":
		if conf.File == "" {
			return nil, noop, fmt.Errorf("logging: log-file must be set when log-output is file")
		}
		f, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, noop, fmt.Errorf("logging: open %s: %w", conf.File, err)
		}
		w := &fileWriter{Writer: bufio.NewWriterSize(f, 64*1024), file: f}
		log.SetOutput(w)
		closeFn = w.Close
	default:
		return nil, noop, fmt.Errorf("logging: invalid output %q: must be stdout, stderr or file", conf.Output)
	}
	return log, closeFn, nil
}

// Discard returns a logger that writes nothing, for tests and tools.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fileWriter struct {
	*bufio.Writer
	file *os.File
}

func (w *fileWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("logging: flush: %w", err)
	}
	return w.file.Close()
}
