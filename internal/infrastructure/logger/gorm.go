package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger adapts zap to gorm's logger interface.
type GormLogger struct {
	logger                    *zap.Logger
	logLevel                  gormlogger.LogLevel
	slowThreshold             time.Duration
	ignoreRecordNotFoundError bool
}

// NewGormLogger creates a gorm logger. Queries slower than 200ms are
// logged as warnings.
func NewGormLogger(logger *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{
		logger:                    logger,
		logLevel:                  level,
		slowThreshold:             200 * time.Millisecond,
		ignoreRecordNotFoundError: true,
	}
}

// LogMode returns a copy with the given log level.
func (gl *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *gl
	clone.logLevel = level
	return &clone
}

// Info logs informational messages from gorm.
func (gl *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if gl.logLevel >= gormlogger.Info {
		gl.contextLogger(ctx).Sugar().Infof(msg, args...)
	}
}

// Warn logs warnings from gorm.
func (gl *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if gl.logLevel >= gormlogger.Warn {
		gl.contextLogger(ctx).Sugar().Warnf(msg, args...)
	}
}

// Error logs errors from gorm.
func (gl *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if gl.logLevel >= gormlogger.Error {
		gl.contextLogger(ctx).Sugar().Errorf(msg, args...)
	}
}

// Trace logs executed SQL with duration and row count.
func (gl *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if gl.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && gl.logLevel >= gormlogger.Error &&
		!(gl.ignoreRecordNotFoundError && errors.Is(err, gorm.ErrRecordNotFound)):
		gl.contextLogger(ctx).Error("sql error", append(fields, zap.Error(err))...)
	case elapsed > gl.slowThreshold && gl.logLevel >= gormlogger.Warn:
		gl.contextLogger(ctx).Warn("slow sql", append(fields, zap.Duration("threshold", gl.slowThreshold))...)
	case gl.logLevel >= gormlogger.Info:
		gl.contextLogger(ctx).Debug("sql", fields...)
	}
}

func (gl *GormLogger) contextLogger(ctx context.Context) *zap.Logger {
	l := gl.logger
	if requestID := GetRequestID(ctx); requestID != "" {
		l = l.With(zap.String("request_id", requestID))
	}
	return l
}

// MapGormLogLevel translates a config level string to a gorm log level.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn", "warning":
		return gormlogger.Warn
	default:
		return gormlogger.Info
	}
}
