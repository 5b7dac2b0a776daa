// Package logging configures the logrus loggers used across opencode-sessions.
//
// Components obtain a logger with NewLogger("component"). Output goes to stderr
// when debugging or when stderr is not a terminal, and optionally to a rotated
// log file.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger setup
type Options struct {
	Level  string // debug, info, warn, error
	File   string // optional log file, rotated by size
	Format string // "text" (default) or "json"
	// Stderr overrides the stderr sink decision when non-nil.
	Stderr *bool
}

var (
	mu      sync.Mutex
	root    = newDefaultLogger()
	loggers = make(map[string]*logrus.Entry)
	closers []io.Closer
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup configures the root logger. The returned function closes the log file.
func Setup(opts Options) (func(), error) {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, err
	}
	root.SetLevel(level)

	switch opts.Format {
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var writers []io.Writer
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
		}
		writers = append(writers, rotator)
		closers = append(closers, rotator)
	}

	toStderr := level >= logrus.DebugLevel || !isInteractive()
	if opts.Stderr != nil {
		toStderr = *opts.Stderr
	}
	if toStderr {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		root.SetOutput(io.Discard)
	case 1:
		root.SetOutput(writers[0])
	default:
		root.SetOutput(io.MultiWriter(writers...))
	}

	return closeAll, nil
}

// SetOutput redirects the root logger, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root.SetOutput(w)
}

// SetLevel changes the root log level
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	root.SetLevel(level)
}

// NewLogger returns the logger for a component, creating it on first use
func NewLogger(component string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}
	entry := root.WithField("component", component)
	loggers[component] = entry
	return entry
}

func closeAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
	closers = nil
}

func isInteractive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
