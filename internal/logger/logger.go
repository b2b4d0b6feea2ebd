// Package logger configures the process-wide structured logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias of logrus.Fields
type Fields = logrus.Fields

// Options controls level and output of the logger
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet drops console output when no file is set, used while the terminal view owns stdout
	Quiet bool
}

var (
	mu     sync.RWMutex
	global = newLogger(os.Getenv("LOG_LEVEL"))
)

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(parseLevel(level))
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return l
}

func parseLevel(level string) logrus.Level {
	if level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Configure replaces the global logger according to opts
func Configure(opts Options) error {
	l := newLogger(opts.Level)

	var out io.Writer = os.Stdout
	switch {
	case opts.File != "":
		if err := os.MkdirAll(dirOf(opts.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
	case opts.Quiet:
		out = io.Discard
	}
	l.SetOutput(out)

	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// Get returns the global logger
func Get() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithComponent returns an entry tagged with a component field
func WithComponent(component string) *logrus.Entry {
	return Get().WithField("component", component)
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i <= 0 {
		return "."
	}
	return path[:i]
}
