// Package logger is the process-wide logrus logger. Every helper is safe to
// call before Init; a default text logger on stdout is used until then.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log *logrus.Logger
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

func std() *logrus.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = newDefault()
	}
	return log
}

// Init replaces the logger. level is one of debug, info, warn or error;
// format is text (the default) or json.
func Init(level, format string) error {
	l := newDefault()

	switch level {
	case "debug", "info", "warn", "error":
		lvl, _ := logrus.ParseLevel(level)
		l.SetLevel(lvl)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	mu.Lock()
	log = l
	mu.Unlock()
	return nil
}

// SetOutput redirects log lines. The terminal client uses it to keep them
// out of the UI.
func SetOutput(w io.Writer) {
	std().SetOutput(w)
}

func WithFields(fields map[string]any) *logrus.Entry {
	return std().WithFields(logrus.Fields(fields))
}

func Debug(args ...interface{})                 { std().Debug(args...) }
func Debugf(format string, args ...interface{}) { std().Debugf(format, args...) }
func Info(args ...interface{})                  { std().Info(args...) }
func Infof(format string, args ...interface{})  { std().Infof(format, args...) }
func Warn(args ...interface{})                  { std().Warn(args...) }
func Warnf(format string, args ...interface{})  { std().Warnf(format, args...) }
func Error(args ...interface{})                 { std().Error(args...) }
func Errorf(format string, args ...interface{}) { std().Errorf(format, args...) }
func Fatal(args ...interface{})                 { std().Fatal(args...) }
func Fatalf(format string, args ...interface{}) { std().Fatalf(format, args...) }
