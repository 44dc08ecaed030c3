package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ParseLogLevel parses a string into a logrus level, defaulting to INFO
func ParseLogLevel(level string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

var defaultLogger *logrus.Logger

func init() {
	// Get log level from environment variable, default to INFO
	defaultLogger = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
	defaultLogger.Debugf("Logger initialized with level: %s", defaultLogger.GetLevel())
}

// New creates a logrus logger. format "json" selects the JSON formatter,
// anything else the text formatter with full timestamps.
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(ParseLogLevel(level))
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}
	return l
}

// Default returns the process-wide logger
func Default() *logrus.Logger {
	return defaultLogger
}

// SetOutput redirects the default logger, mainly for tests
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// SetFormat switches the default logger between "json" and text output
func SetFormat(format string) {
	defaultLogger.SetFormatter(New("", format, io.Discard).Formatter)
}

// SetLogLevel sets the log level for the default logger
func SetLogLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
	defaultLogger.Infof("Log level changed to: %s", level)
}

// GetLogLevel returns the current log level
func GetLogLevel() logrus.Level {
	return defaultLogger.GetLevel()
}

// SetLogLevelFromString sets the log level from a string (convenience function)
func SetLogLevelFromString(level string) {
	SetLogLevel(ParseLogLevel(level))
}

// WithFields returns an entry carrying structured context
func WithFields(fields logrus.Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}

// WithRound tags log lines with the round they concern
func WithRound(roundID string) *logrus.Entry {
	return defaultLogger.WithField("round_id", roundID)
}

// Package-level convenience functions using the default logger

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	defaultLogger.Debugf(format, args...)
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}
