// Package logging configures daybook's structured logging.
//
// Components depend on the small Logger interface rather than a
// concrete logger, so tests can substitute a capture or nop
// implementation. Production wiring uses logrus with optional
// size-based rotation via lumberjack.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or
// any other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Config controls logger construction.
type Config struct {
	// Level is a logrus level name ("debug", "info", "warn", "error").
	// Invalid or empty values fall back to info.
	Level string

	// File, when set, appends log output to a rotating file instead of
	// stderr.
	File string

	// MaxSizeMB caps the size of the log file before rotation
	// (default 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files to retain (default 3).
	MaxBackups int
}

// New builds a logrus logger from config.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
	}
	log.SetOutput(out)

	return log
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}
