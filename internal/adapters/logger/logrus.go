// Package logger adapts logrus to the ports.Logger interface.
package logger

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements the ports.Logger interface using logrus.
type LogrusLogger struct {
	logger *logrus.Logger
}

// ParseLevel converts a string level to a logrus level, defaulting to Info.
func ParseLevel(levelStr string) logrus.Level {
	switch strings.ToUpper(levelStr) {
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

// New creates a logrus-backed logger writing structured text to stderr.
func New(level logrus.Level) *LogrusLogger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return &LogrusLogger{logger: l}
}

func entry(l *logrus.Logger, fields ...map[string]interface{}) *logrus.Entry {
	if len(fields) > 0 && fields[0] != nil {
		return l.WithFields(logrus.Fields(fields[0]))
	}
	return logrus.NewEntry(l)
}

// Debug logs a message at Debug level.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	entry(l.logger, fields...).Debug(msg)
}

// Info logs a message at Info level.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	entry(l.logger, fields...).Info(msg)
}

// Warn logs a message at Warning level.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	entry(l.logger, fields...).Warn(msg)
}

// Error logs an error message at Error level.
func (l *LogrusLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	e := entry(l.logger, fields...)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}
