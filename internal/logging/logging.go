// Package logging configures the shared structured logger for the bot.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"upi_qr_bot/internal/config"
)

const serviceName = "upi-qr-bot"

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Context carries the identifiers most handler logs share. Zero values are
// omitted from the resulting entry.
type Context struct {
	UserID  int64
	ChatID  int64
	Command string
	Event   string
}

var baseLogger *logrus.Entry

// Setup builds the process-wide logger from the runtime configuration: the
// configured level, a JSON formatter in production, and service/env fields on
// every entry. The returned entry is also cached for the package helpers.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(newFormatter(cfg.AppEnv))

	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     cfg.AppEnv,
	})

	return baseLogger, nil
}

// Logger returns the configured base logger. Before Setup runs it falls back
// to an info-level default so early boot failures still produce output.
func Logger() *logrus.Entry {
	if baseLogger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(newFormatter(config.DefaultAppEnv))

		baseLogger = logger.WithFields(logrus.Fields{
			"service": serviceName,
			"env":     config.DefaultAppEnv,
		})
	}

	return baseLogger
}

// WithContext returns an entry enriched with the non-zero fields of ctx.
func WithContext(ctx Context) *logrus.Entry {
	fields := logrus.Fields{}

	if ctx.UserID != 0 {
		fields["user_id"] = ctx.UserID
	}
	if ctx.ChatID != 0 {
		fields["chat_id"] = ctx.ChatID
	}
	if cmd := strings.TrimSpace(ctx.Command); cmd != "" {
		fields["command"] = cmd
	}
	if event := strings.TrimSpace(ctx.Event); event != "" {
		fields["event"] = event
	}

	return logWithFields(fields)
}

// Info logs an informational message with optional structured fields.
func Info(msg string, fields logrus.Fields) {
	logWithFields(fields).Info(msg)
}

// Warn logs a warning message with optional structured fields.
func Warn(msg string, fields logrus.Fields) {
	logWithFields(fields).Warn(msg)
}

// Error logs an error message with optional structured fields.
func Error(msg string, fields logrus.Fields) {
	logWithFields(fields).Error(msg)
}

func logWithFields(fields logrus.Fields) *logrus.Entry {
	entry := Logger()
	if len(fields) == 0 {
		return entry
	}

	return entry.WithFields(fields)
}

func newFormatter(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
