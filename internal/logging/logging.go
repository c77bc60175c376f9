// Package logging wires the process-wide logrus logger and hands out
// per-module entries.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

const (
	logFilePattern = "livewatch.%Y%m%d.log"
	logLinkName    = "livewatch.log"
	maxAge         = 7 * 24 * time.Hour
	rotationTime   = 24 * time.Hour
)

// Module returns a logger tagged with the module name.
func Module(name string) *logrus.Entry {
	return logrus.WithField("module", name)
}

// SetLevel parses and applies a level name. An empty name keeps the
// current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// ToStderr sends log output to stderr with full timestamps.
func ToStderr() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
}

// ToFiles sends log output exclusively to daily-rotated files under dir.
// The terminal is left untouched, which the full-screen UI requires.
func ToFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	writer, err := rotatelogs.New(
		filepath.Join(dir, logFilePattern),
		rotatelogs.WithLinkName(filepath.Join(dir, logLinkName)),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(rotationTime),
	)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	logrus.SetOutput(io.Discard)
	logrus.AddHook(lfshook.NewHook(lfshook.WriterMap{
		logrus.TraceLevel: writer,
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   true,
		TimestampFormat: time.RFC3339,
	}))
	return nil
}

// DefaultDir returns the state directory used for log files, respecting
// XDG_STATE_HOME if set.
func DefaultDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, "livewatch", "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", "livewatch", "logs")
}
