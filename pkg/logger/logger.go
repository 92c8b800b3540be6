// Package logger wires logrus with lumberjack file rotation behind a
// small package-level facade.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the shared instance. Nil until Init; the package
	// helpers guard against that so early startup code may log.
	Logger *logrus.Logger
	logMu  sync.Mutex
)

// Config controls level, format and optional rotating file output.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty: console only
	MaxSize    int    // MB per file before rotation
	MaxBackups int    // rotated files to keep
	MaxAge     int    // days to keep rotated files
	Compress   bool
}

// Init builds the shared logger. Safe to call more than once; the
// last call wins.
func Init(cfg Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if dir := filepath.Dir(cfg.OutputFile); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    orDefault(cfg.MaxSize, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAge, 14),
			Compress:   cfg.Compress,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))

	Logger = l
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func Debugf(format string, args ...any) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...any) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Warnf(format string, args ...any) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Errorf(format string, args ...any) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

func Info(args ...any) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

func Error(args ...any) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

// WithField returns an entry carrying one structured field. Falls
// back to a discard logger before Init so callers never nil-check.
func WithField(key string, value any) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField(key, value)
}
