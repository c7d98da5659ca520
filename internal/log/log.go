package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the surface every driver (C4/C5/C6) depends on instead of the
// package-level global, so tests can inject a no-op implementation.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Configure applies the level and output directory from C8's Logging
// config; level is one of DEBUG/WARN/INFO/ERROR, case-insensitive, and
// unknown values leave the default INFO level in place.
func Configure(level, directory string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		logger.SetLevel(logrus.DebugLevel)
	case "WARN":
		logger.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logger.SetLevel(logrus.ErrorLevel)
	case "INFO", "":
		logger.SetLevel(logrus.InfoLevel)
	}
	if directory == "" {
		return
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		logger.Errorf("create log directory %s: %v", directory, err)
		return
	}
	file, err := os.OpenFile(directory+"/engine.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Errorf("open log file: %v", err)
		return
	}
	logger.SetOutput(file)
}

// GetLogger returns the shared logger instance.
func GetLogger() *logrus.Logger {
	return logger
}

// NoopLogger discards everything; used by tests and callers that don't
// want C4/C5/C6 driver chatter.
type NoopLogger struct{}

func (NoopLogger) Infof(string, ...interface{})  {}
func (NoopLogger) Warnf(string, ...interface{})  {}
func (NoopLogger) Errorf(string, ...interface{}) {}
func (NoopLogger) Debugf(string, ...interface{}) {}
